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

// Package auth implements the attribute-based access control engine of the
// access rule service: value resolution, expression evaluation, object
// matching, the rule store, deny-overrides decisions, filter compilation and
// the HTTP middleware that enforces decisions.
package auth

import (
	"context"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Claims is the opaque claims map of an authenticated subject.
type Claims map[string]any

// Subject carries the attributes of the caller. Tokens are never parsed here;
// an upstream authentication layer supplies the claims.
type Subject struct {
	Claims    Claims     `json:"claims,omitempty"`
	Anonymous bool       `json:"anonymous,omitempty"`
	ClientNow *time.Time `json:"clientTime,omitempty"`
}

// AnonymousSubject returns the subject used for unauthenticated callers.
func AnonymousSubject() Subject {
	return Subject{Claims: Claims{}, Anonymous: true}
}

// TargetDescriptor is the addressable identity of the object a request acts on.
//
// Fields holds the target's own values addressed by REFERENCE bindings and
// $field operands, e.g. {"$sm#idShort": "motor"}.
type TargetDescriptor struct {
	Route        string         `json:"route,omitempty"`
	Identifiable string         `json:"identifiable,omitempty"`
	Referable    string         `json:"referable,omitempty"`
	Fragment     string         `json:"fragment,omitempty"`
	Descriptor   string         `json:"descriptor,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// EvaluationContext is built per request and discarded afterwards.
type EvaluationContext struct {
	Subject Subject
	Target  TargetDescriptor
	Right   grammar.Right
}

type ctxKey string

const (
	subjectKey ctxKey = "subject"
	filterKey  ctxKey = "queryFilter"
)

// WithSubject stores the subject of the current request in ctx.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// SubjectFromContext returns the subject stored by WithSubject. Requests
// without a subject are treated as anonymous.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	if v := ctx.Value(subjectKey); v != nil {
		if s, ok := v.(Subject); ok {
			return s, true
		}
	}
	return AnonymousSubject(), false
}

// WithQueryFilter stores a compiled listing filter in ctx.
func WithQueryFilter(ctx context.Context, qf *CompileResult) context.Context {
	return context.WithValue(ctx, filterKey, qf)
}

// GetQueryFilter extracts the *CompileResult stored by the ABAC middleware.
// It returns nil if no filter was stored.
func GetQueryFilter(ctx context.Context) *CompileResult {
	if v := ctx.Value(filterKey); v != nil {
		if f, ok := v.(*CompileResult); ok {
			return f
		}
	}
	return nil
}
