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
	"net/http"
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/go-chi/chi/v5"
)

type mapMethodAndPatternToRight struct {
	Method  string
	Pattern string
	Right   grammar.Right
}

var mapMethodAndPatternToRightsData = []mapMethodAndPatternToRight{
	// access rule service
	{http.MethodGet, "/rules", grammar.RightRead},
	{http.MethodPost, "/rules", grammar.RightCreate},
	{http.MethodGet, "/rules/{ruleId}", grammar.RightRead},
	{http.MethodPut, "/rules/{ruleId}", grammar.RightUpdate},
	{http.MethodDelete, "/rules/{ruleId}", grammar.RightDelete},
	{http.MethodPost, "/rules/$reload", grammar.RightUpdate},
	{http.MethodGet, "/access-rule-model", grammar.RightRead},
	{http.MethodPut, "/access-rule-model", grammar.RightUpdate},
	{http.MethodPost, "/decisions", grammar.RightRead}, // evaluating does not change state
	{http.MethodPost, "/filters", grammar.RightRead},

	// operation invocation of submodel repositories
	{http.MethodPost, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/invoke", grammar.RightExecute},
	{http.MethodPost, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/invoke/$value", grammar.RightExecute},
	{http.MethodPost, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/invoke-async", grammar.RightExecute},
	{http.MethodPost, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/invoke-async/$value", grammar.RightExecute},
	{http.MethodGet, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/operation-status/{handleId}", grammar.RightExecute},
	{http.MethodGet, "/submodels/{submodelIdentifier}/submodel-elements/{idShortPath}/operation-results/{handleId}", grammar.RightExecute},

	// query endpoints read although they are POSTed
	{http.MethodPost, "/query/shell-descriptors", grammar.RightRead},
	{http.MethodPost, "/query/submodels", grammar.RightRead},
	{http.MethodPost, "/lookup/shellsByAssetLink", grammar.RightRead},
}

// RightsMapper resolves the right an HTTP request needs. Known routes are
// looked up in a route table; other requests fall back to the method.
type RightsMapper struct {
	router *chi.Mux
	rights map[string]grammar.Right
}

// NewRightsMapper returns a mapper for the built-in route table.
func NewRightsMapper() *RightsMapper {
	m := &RightsMapper{router: chi.NewRouter(), rights: map[string]grammar.Right{}}
	noop := func(http.ResponseWriter, *http.Request) {}
	for _, e := range mapMethodAndPatternToRightsData {
		m.router.MethodFunc(e.Method, e.Pattern, noop)
		m.rights[e.Method+" "+e.Pattern] = e.Right
	}
	return m
}

// RightFor returns the right needed for method on path. path must already be
// stripped of the service base path.
func (m *RightsMapper) RightFor(method, path string) grammar.Right {
	rctx := chi.NewRouteContext()
	if m.router.Match(rctx, method, path) {
		if r, ok := m.rights[method+" "+rctx.RoutePattern()]; ok {
			return r
		}
	}
	return rightForMethod(method, path)
}

// rightForMethod maps HTTP methods to rights. POSTs to operation invocation
// endpoints execute. Unknown methods need no known right and are denied.
func rightForMethod(method, path string) grammar.Right {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return grammar.RightRead
	case http.MethodPost:
		if strings.Contains(path, "/invoke") {
			return grammar.RightExecute
		}
		return grammar.RightCreate
	case http.MethodPut, http.MethodPatch:
		return grammar.RightUpdate
	case http.MethodDelete:
		return grammar.RightDelete
	}
	return ""
}
