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

// Package api exposes the rule store, the access rule model and the decision
// engine of the access rule service over HTTP.
package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/go-chi/chi/v5"
)

const (
	componentName = "RULES"
)

// AccessRulesAPIServicer defines the api actions for the AccessRulesAPI service.
type AccessRulesAPIServicer interface {
	GetAllAccessRules(context.Context) (model.ImplResponse, error)
	PostAccessRule(context.Context, grammar.Rule) (model.ImplResponse, error)
	GetAccessRuleByID(context.Context, string) (model.ImplResponse, error)
	PutAccessRuleByID(context.Context, string, grammar.Rule) (model.ImplResponse, error)
	DeleteAccessRuleByID(context.Context, string) (model.ImplResponse, error)
	ReloadAccessRules(context.Context) (model.ImplResponse, error)
	GetAccessRuleModel(context.Context) (model.ImplResponse, error)
	PutAccessRuleModel(context.Context, []byte) (model.ImplResponse, error)
	PostDecision(context.Context, DecisionRequest) (model.ImplResponse, error)
	PostFilter(context.Context, FilterRequest) (model.ImplResponse, error)
}

// AccessRulesAPIController binds http requests to an api service and writes the service results to the http response
type AccessRulesAPIController struct {
	service      AccessRulesAPIServicer
	errorHandler model.ErrorHandler
}

// AccessRulesAPIOption for how the controller is set up.
type AccessRulesAPIOption func(*AccessRulesAPIController)

// WithAccessRulesAPIErrorHandler inject ErrorHandler into controller
func WithAccessRulesAPIErrorHandler(h model.ErrorHandler) AccessRulesAPIOption {
	return func(c *AccessRulesAPIController) {
		c.errorHandler = h
	}
}

// NewAccessRulesAPIController creates a default api controller
func NewAccessRulesAPIController(s AccessRulesAPIServicer, opts ...AccessRulesAPIOption) *AccessRulesAPIController {
	controller := &AccessRulesAPIController{
		service:      s,
		errorHandler: model.DefaultErrorHandler,
	}

	for _, opt := range opts {
		opt(controller)
	}

	return controller
}

// Routes returns all the api routes for the AccessRulesAPIController
func (c *AccessRulesAPIController) Routes() model.Routes {
	return model.Routes{
		"GetAllAccessRules": model.Route{
			Method:      strings.ToUpper("Get"),
			Pattern:     "/rules",
			HandlerFunc: c.GetAllAccessRules,
		},
		"PostAccessRule": model.Route{
			Method:      strings.ToUpper("Post"),
			Pattern:     "/rules",
			HandlerFunc: c.PostAccessRule,
		},
		"GetAccessRuleByID": model.Route{
			Method:      strings.ToUpper("Get"),
			Pattern:     "/rules/{ruleId}",
			HandlerFunc: c.GetAccessRuleByID,
		},
		"PutAccessRuleByID": model.Route{
			Method:      strings.ToUpper("Put"),
			Pattern:     "/rules/{ruleId}",
			HandlerFunc: c.PutAccessRuleByID,
		},
		"DeleteAccessRuleByID": model.Route{
			Method:      strings.ToUpper("Delete"),
			Pattern:     "/rules/{ruleId}",
			HandlerFunc: c.DeleteAccessRuleByID,
		},
		"ReloadAccessRules": model.Route{
			Method:      strings.ToUpper("Post"),
			Pattern:     "/rules/$reload",
			HandlerFunc: c.ReloadAccessRules,
		},
		"GetAccessRuleModel": model.Route{
			Method:      strings.ToUpper("Get"),
			Pattern:     "/access-rule-model",
			HandlerFunc: c.GetAccessRuleModel,
		},
		"PutAccessRuleModel": model.Route{
			Method:      strings.ToUpper("Put"),
			Pattern:     "/access-rule-model",
			HandlerFunc: c.PutAccessRuleModel,
		},
		"PostDecision": model.Route{
			Method:      strings.ToUpper("Post"),
			Pattern:     "/decisions",
			HandlerFunc: c.PostDecision,
		},
		"PostFilter": model.Route{
			Method:      strings.ToUpper("Post"),
			Pattern:     "/filters",
			HandlerFunc: c.PostFilter,
		},
	}
}

func (c *AccessRulesAPIController) writeResult(w http.ResponseWriter, r *http.Request, operation string, result model.ImplResponse, err error) {
	if err != nil {
		log.Printf("🧩 [%s] Error in %s: service failure: %v", componentName, operation, err)
		c.errorHandler(w, r, err, &result)
		return
	}
	_ = model.EncodeJSONResponse(result.Body, &result.Code, w)
}

func writeBadRequest(w http.ResponseWriter, operation string, err error) {
	log.Printf("🧩 [%s] Error in %s: bad request: %v", componentName, operation, err)
	result := common.NewErrorResponse(err, http.StatusBadRequest, componentName, operation, "BadRequest")
	_ = model.EncodeJSONResponse(result.Body, &result.Code, w)
}

func readRule(r *http.Request) (grammar.Rule, error) {
	body, err := common.ReadRequestBody(r)
	if err != nil {
		return grammar.Rule{}, err
	}
	rule, err := grammar.ParseRule(body)
	if err != nil {
		return grammar.Rule{}, common.NewErrBadRequest(err.Error())
	}
	return rule, nil
}

// GetAllAccessRules - Returns all access rules
func (c *AccessRulesAPIController) GetAllAccessRules(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetAllAccessRules(r.Context())
	c.writeResult(w, r, "GetAllAccessRules", result, err)
}

// PostAccessRule - Creates a new access rule
func (c *AccessRulesAPIController) PostAccessRule(w http.ResponseWriter, r *http.Request) {
	rule, err := readRule(r)
	if err != nil {
		writeBadRequest(w, "PostAccessRule", err)
		return
	}
	result, err := c.service.PostAccessRule(r.Context(), rule)
	c.writeResult(w, r, "PostAccessRule", result, err)
}

// GetAccessRuleByID - Returns a specific access rule
func (c *AccessRulesAPIController) GetAccessRuleByID(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetAccessRuleByID(r.Context(), chi.URLParam(r, "ruleId"))
	c.writeResult(w, r, "GetAccessRuleByID", result, err)
}

// PutAccessRuleByID - Replaces an existing access rule
func (c *AccessRulesAPIController) PutAccessRuleByID(w http.ResponseWriter, r *http.Request) {
	rule, err := readRule(r)
	if err != nil {
		writeBadRequest(w, "PutAccessRuleByID", err)
		return
	}
	result, err := c.service.PutAccessRuleByID(r.Context(), chi.URLParam(r, "ruleId"), rule)
	c.writeResult(w, r, "PutAccessRuleByID", result, err)
}

// DeleteAccessRuleByID - Deletes an access rule
func (c *AccessRulesAPIController) DeleteAccessRuleByID(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.DeleteAccessRuleByID(r.Context(), chi.URLParam(r, "ruleId"))
	c.writeResult(w, r, "DeleteAccessRuleByID", result, err)
}

// ReloadAccessRules - Reloads the rules from their persistent source
func (c *AccessRulesAPIController) ReloadAccessRules(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.ReloadAccessRules(r.Context())
	c.writeResult(w, r, "ReloadAccessRules", result, err)
}

// GetAccessRuleModel - Exports the rules as access rule model document
func (c *AccessRulesAPIController) GetAccessRuleModel(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetAccessRuleModel(r.Context())
	c.writeResult(w, r, "GetAccessRuleModel", result, err)
}

// PutAccessRuleModel - Replaces all rules with an access rule model document
func (c *AccessRulesAPIController) PutAccessRuleModel(w http.ResponseWriter, r *http.Request) {
	body, err := common.ReadRequestBody(r)
	if err != nil {
		writeBadRequest(w, "PutAccessRuleModel", err)
		return
	}
	result, err := c.service.PutAccessRuleModel(r.Context(), body)
	c.writeResult(w, r, "PutAccessRuleModel", result, err)
}

// PostDecision - Decides a single request
func (c *AccessRulesAPIController) PostDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := common.DecodeJSONBody(r, &req); err != nil {
		writeBadRequest(w, "PostDecision", err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, "PostDecision", err)
		return
	}
	result, err := c.service.PostDecision(r.Context(), req)
	c.writeResult(w, r, "PostDecision", result, err)
}

// PostFilter - Compiles the rules for a subject into a listing predicate
func (c *AccessRulesAPIController) PostFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := common.DecodeJSONBody(r, &req); err != nil {
		writeBadRequest(w, "PostFilter", err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, "PostFilter", err)
		return
	}
	result, err := c.service.PostFilter(r.Context(), req)
	c.writeResult(w, r, "PostFilter", result, err)
}
