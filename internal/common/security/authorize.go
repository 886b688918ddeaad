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

package auth

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// ABACSettings defines the configuration used to enable and control
// Attribute-Based Access Control.
//
// Enabled: toggles ABAC enforcement.
// Engine: decides requests against the current rules.
// BasePath: the service context path, removed before routes are matched.
// Rights: maps method and path to the requested right; nil selects the
// built-in table.
// FilterReads: compiles a listing filter for READ requests and stores it in
// the request context (see GetQueryFilter).
type ABACSettings struct {
	Enabled     bool
	Engine      *Engine
	BasePath    string
	Rights      *RightsMapper
	FilterReads bool
}

// ABACMiddleware returns an HTTP middleware handler that enforces
// attribute-based authorization based on the provided ABACSettings.
//
// If ABAC is disabled, the next handler is executed without checks.
// If enabled, the subject is taken from the request context; requests
// without one are evaluated as anonymous. Every outcome other than Permit
// results in 403 Forbidden.
func ABACMiddleware(settings ABACSettings) func(http.Handler) http.Handler {
	rights := settings.Rights
	if rights == nil {
		rights = NewRightsMapper()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !settings.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			if settings.Engine == nil {
				writeForbidden(w, errors.New("access denied: no decision engine configured"), "NoEngine")
				return
			}

			subject, _ := SubjectFromContext(r.Context())
			route := stripBasePath(settings.BasePath, r.URL.Path)
			right := rights.RightFor(r.Method, route)
			if right == "" {
				log.Printf("❌ ABAC: no right known for %s %s", r.Method, route)
				writeForbidden(w, fmt.Errorf("access denied: method %s is not supported", r.Method), "UnknownMethod")
				return
			}

			decision := settings.Engine.Decide(subject, right, TargetDescriptor{Route: route})
			if !decision.Allowed() {
				log.Printf("❌ ABAC: %s %s (%s) -> %s", r.Method, route, right, decision.Outcome)
				writeForbidden(w, errors.New("access denied"), "Denied")
				return
			}

			ctx := r.Context()
			if settings.FilterReads && right == grammar.RightRead {
				qf, err := settings.Engine.Compile(right, subject)
				if err != nil {
					log.Printf("❌ ABAC: compiling filter for %s failed: %v", route, err)
					writeForbidden(w, errors.New("access denied"), "Filter")
					return
				}
				ctx = WithQueryFilter(ctx, qf)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeForbidden(w http.ResponseWriter, err error, code string) {
	resp := common.NewErrorResponse(err, http.StatusForbidden, "Middleware", "Rules", code)
	if encErr := model.EncodeJSONResponse(resp.Body, &resp.Code, w); encErr != nil {
		log.Printf("❌ Failed to encode error response: %v", encErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeBadSubject(w http.ResponseWriter, err error) {
	resp := common.NewErrorResponse(err, http.StatusBadRequest, "Middleware", "Subject", "BadRequest")
	if encErr := model.EncodeJSONResponse(resp.Body, &resp.Code, w); encErr != nil {
		log.Printf("❌ Failed to encode error response: %v", encErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
