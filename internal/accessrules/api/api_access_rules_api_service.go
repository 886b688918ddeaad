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

package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register postgres dialect
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
)

// RuleRuntime is the rule store together with its model document and reload
// operations.
type RuleRuntime interface {
	auth.RuleStore
	Reload(ctx context.Context) error
	ExportModel(ctx context.Context) (*grammar.AccessRuleModel, error)
	ImportModel(ctx context.Context, data []byte) (int, error)
}

// AccessRuleResponse is a stored rule together with its ID.
type AccessRuleResponse struct {
	ID   grammar.RuleID `json:"id"`
	Rule grammar.Rule   `json:"rule"`
}

// RuleCountResponse reports how many rules were loaded.
type RuleCountResponse struct {
	Rules int `json:"rules"`
}

// DecisionRequest asks for the decision on one request.
type DecisionRequest struct {
	Subject auth.Subject          `json:"subject"`
	Right   grammar.Right         `json:"right"`
	Target  auth.TargetDescriptor `json:"target"`
}

func (r DecisionRequest) validate() error {
	if r.Right == "" {
		return common.NewErrBadRequest("right is required")
	}
	return nil
}

// FilterRequest asks for the listing predicate of a subject. When Table is
// set, the response also carries a PostgreSQL query selecting the permitted
// rows, with field paths mapped to columns by Columns.
type FilterRequest struct {
	Subject  auth.Subject               `json:"subject"`
	Right    grammar.Right              `json:"right"`
	Fragment string                     `json:"fragment,omitempty"`
	Table    string                     `json:"table,omitempty"`
	Columns  grammar.FieldColumnMapping `json:"columns,omitempty"`
}

func (r FilterRequest) validate() error {
	if r.Right == "" {
		return common.NewErrBadRequest("right is required")
	}
	if r.Table != "" && len(r.Columns) == 0 {
		return common.NewErrBadRequest("columns are required when table is set")
	}
	return nil
}

// FilterResponse is a compiled filter and, if requested, its SQL rendering.
type FilterResponse struct {
	*auth.CompileResult
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`
}

// AccessRulesAPIService implements the logic for the AccessRulesAPIServicer.
type AccessRulesAPIService struct {
	rules  RuleRuntime
	engine *auth.Engine
}

// NewAccessRulesAPIService creates a default api service
func NewAccessRulesAPIService(rules RuleRuntime, engine *auth.Engine) *AccessRulesAPIService {
	return &AccessRulesAPIService{rules: rules, engine: engine}
}

func errorResponse(err error, operation string) (model.ImplResponse, error) {
	status := common.StatusCodeFor(err)
	var code string
	switch status {
	case http.StatusNotFound:
		code = "NotFound"
	case http.StatusBadRequest:
		code = "BadRequest"
	case http.StatusConflict:
		code = "Conflict"
	default:
		log.Printf("📍 [%s] Error in %s: internal: %v", componentName, operation, err)
		return common.NewErrorResponse(err, http.StatusInternalServerError, componentName, operation, "Unhandled"), err
	}
	log.Printf("📍 [%s] Error in %s: %s: %v", componentName, operation, strings.ToLower(code), err)
	return common.NewErrorResponse(err, status, componentName, operation, code), nil
}

// GetAllAccessRules - Returns all access rules
func (s *AccessRulesAPIService) GetAllAccessRules(ctx context.Context) (model.ImplResponse, error) {
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return errorResponse(err, "GetAllAccessRules")
	}
	out := make([]AccessRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, AccessRuleResponse{ID: rule.ID, Rule: rule})
	}
	return model.Response(http.StatusOK, out), nil
}

// PostAccessRule - Creates a new access rule
func (s *AccessRulesAPIService) PostAccessRule(ctx context.Context, rule grammar.Rule) (model.ImplResponse, error) {
	id, err := s.rules.AddRule(ctx, rule)
	if err != nil {
		return errorResponse(err, "PostAccessRule")
	}
	rule.ID = id
	return model.Response(http.StatusCreated, AccessRuleResponse{ID: id, Rule: rule}), nil
}

// GetAccessRuleByID - Returns a specific access rule
func (s *AccessRulesAPIService) GetAccessRuleByID(ctx context.Context, ruleID string) (model.ImplResponse, error) {
	rule, err := s.rules.GetRule(ctx, grammar.RuleID(ruleID))
	if err != nil {
		return errorResponse(err, "GetAccessRuleByID")
	}
	return model.Response(http.StatusOK, AccessRuleResponse{ID: rule.ID, Rule: rule}), nil
}

// PutAccessRuleByID - Replaces an existing access rule
func (s *AccessRulesAPIService) PutAccessRuleByID(ctx context.Context, ruleID string, rule grammar.Rule) (model.ImplResponse, error) {
	id := grammar.RuleID(ruleID)
	if err := s.rules.UpdateRule(ctx, id, rule); err != nil {
		return errorResponse(err, "PutAccessRuleByID")
	}
	rule.ID = id
	return model.Response(http.StatusOK, AccessRuleResponse{ID: id, Rule: rule}), nil
}

// DeleteAccessRuleByID - Deletes an access rule
func (s *AccessRulesAPIService) DeleteAccessRuleByID(ctx context.Context, ruleID string) (model.ImplResponse, error) {
	if err := s.rules.RemoveRule(ctx, grammar.RuleID(ruleID)); err != nil {
		return errorResponse(err, "DeleteAccessRuleByID")
	}
	return model.Response(http.StatusNoContent, nil), nil
}

// ReloadAccessRules - Reloads the rules from their persistent source
func (s *AccessRulesAPIService) ReloadAccessRules(ctx context.Context) (model.ImplResponse, error) {
	if err := s.rules.Reload(ctx); err != nil {
		return errorResponse(err, "ReloadAccessRules")
	}
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return errorResponse(err, "ReloadAccessRules")
	}
	return model.Response(http.StatusOK, RuleCountResponse{Rules: len(rules)}), nil
}

// GetAccessRuleModel - Exports the rules as access rule model document
func (s *AccessRulesAPIService) GetAccessRuleModel(ctx context.Context) (model.ImplResponse, error) {
	doc, err := s.rules.ExportModel(ctx)
	if err != nil {
		return errorResponse(err, "GetAccessRuleModel")
	}
	return model.Response(http.StatusOK, doc), nil
}

// PutAccessRuleModel - Replaces all rules with an access rule model document
func (s *AccessRulesAPIService) PutAccessRuleModel(ctx context.Context, body []byte) (model.ImplResponse, error) {
	n, err := s.rules.ImportModel(ctx, body)
	if err != nil {
		return errorResponse(err, "PutAccessRuleModel")
	}
	return model.Response(http.StatusOK, RuleCountResponse{Rules: n}), nil
}

// PostDecision - Decides a single request
func (s *AccessRulesAPIService) PostDecision(_ context.Context, req DecisionRequest) (model.ImplResponse, error) {
	decision := s.engine.Decide(req.Subject, req.Right, req.Target)
	return model.Response(http.StatusOK, decision), nil
}

// PostFilter - Compiles the rules for a subject into a listing predicate
func (s *AccessRulesAPIService) PostFilter(_ context.Context, req FilterRequest) (model.ImplResponse, error) {
	var opts []auth.CompileOption
	if req.Fragment != "" {
		opts = append(opts, auth.WithFragment(req.Fragment))
	}
	compiled, err := s.engine.Compile(req.Right, req.Subject, opts...)
	if err != nil {
		return errorResponse(err, "PostFilter")
	}
	resp := FilterResponse{CompileResult: compiled}
	if req.Table == "" {
		return model.Response(http.StatusOK, resp), nil
	}

	ds := goqu.Dialect(common.Dialect).From(goqu.T(req.Table)).Prepared(true)
	ds, err = auth.ApplyPredicate(ds, compiled, req.Columns)
	if errors.Is(err, auth.ErrFallbackRequired) {
		return model.Response(http.StatusOK, resp), nil
	}
	if err != nil {
		return errorResponse(common.NewErrBadRequest(err.Error()), "PostFilter")
	}
	sqlStr, args, err := ds.ToSQL()
	if err != nil {
		return errorResponse(common.NewErrBadRequest(err.Error()), "PostFilter")
	}
	resp.SQL = sqlStr
	resp.Args = args
	return model.Response(http.StatusOK, resp), nil
}
