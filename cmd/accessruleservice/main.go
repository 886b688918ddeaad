/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules"
	api "github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/api"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/logger"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context, configPath string) error {
	log.Default().Println("Loading Access Rule Service...")
	log.Default().Println("Config Path:", configPath)

	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger.SetDebug(cfg.ABAC.Debug)

	// === Rules ===
	rt, err := accessrules.Open(ctx, cfg)
	if err != nil {
		log.Printf("❌ Opening rule store failed: %v", err)
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			log.Printf("❌ Closing rule store failed: %v", cerr)
		}
	}()
	log.Printf("✅ Rule store ready (backend=%s)", cfg.ABAC.Backend)

	engine, err := auth.NewEngine(rt, auth.WithRegexCacheSize(cfg.ABAC.RegexCacheSize))
	if err != nil {
		return err
	}
	defer engine.Close()

	// === Main Router ===
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	common.AddCors(r, cfg)

	// --- Health Endpoint (public) ---
	common.AddHealthEndpoint(r, cfg, map[string]common.HealthCheck{"rules": rt.Ping})

	// === Protected API ===
	base := common.NormalizeBasePath(cfg.Server.ContextPath)
	if base == "/" {
		base = ""
	}
	ctrl := api.NewAccessRulesAPIController(api.NewAccessRulesAPIService(rt, engine))
	r.Group(func(pr chi.Router) {
		pr.Use(auth.SubjectFromHeader(cfg.ABAC.SubjectHeader))
		pr.Use(auth.ABACMiddleware(auth.ABACSettings{
			Enabled:  cfg.ABAC.Enabled,
			Engine:   engine,
			BasePath: cfg.Server.ContextPath,
		}))
		model.Mount(pr, base, ctrl)
	})
	if !cfg.ABAC.Enabled {
		log.Println("⚠️  ABAC is disabled: the rule administration API is unprotected")
	}

	// === Start Server ===
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("🚀 Access Rule Service listening on %s (contextPath=%q)", addr, cfg.Server.ContextPath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := rt.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch rule changes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := ""
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	common.PrintSplash()
	if err := runServer(ctx, configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
