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

package accessrules

import (
	"context"
	"fmt"

	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/notify"
	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/persistence"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
)

// Open builds the runtime selected by cfg.ABAC.Backend and, when
// cfg.Redis.Addr is set, connects it to the peer notification channel.
func Open(ctx context.Context, cfg *common.Config) (*Runtime, error) {
	var repo persistence.Repository
	switch cfg.ABAC.Backend {
	case common.BackendMemory:
	case common.BackendPostgres:
		db, err := common.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("SEC-RULES-OPENDB: %w", err)
		}
		pg, err := persistence.NewPostgresRepository(db, cfg.ABAC.RulesTable)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("SEC-RULES-INITREPO: %w", err)
		}
		repo = pg
	case common.BackendMongo:
		mongoRepo, err := persistence.NewMongoRepository(ctx, cfg.Mongo, cfg.ABAC.RulesCollection)
		if err != nil {
			return nil, fmt.Errorf("SEC-RULES-OPENDB: %w", err)
		}
		repo = mongoRepo
	default:
		return nil, fmt.Errorf("SEC-RULES-OPEN: unknown backend %q", cfg.ABAC.Backend)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Redis.Addr != "" {
		redisNotifier, err := notify.NewRedisNotifier(cfg.Redis)
		if err != nil {
			closeRepository(repo)
			return nil, err
		}
		notifier = redisNotifier
	}

	rt, err := NewRuntime(ctx, Options{
		Store:            auth.NewMemoryRuleStore(auth.WithStrictValidation()),
		Repository:       repo,
		Notifier:         notifier,
		ModelPath:        cfg.ABAC.ModelPath,
		SyncModelToStore: cfg.ABAC.SyncModelToStore,
	})
	if err != nil {
		closeRepository(repo)
		_ = notifier.Close()
		return nil, err
	}
	return rt, nil
}

func closeRepository(repo persistence.Repository) {
	if repo != nil {
		_ = repo.Close()
	}
}
