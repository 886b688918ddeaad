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

// Package persistence stores access permission rules outside the process.
//
// Rules are persisted in their Access Rule Model JSON form together with the
// ID assigned by the service. Implementations return common.NewErrNotFound
// for unknown IDs and common.NewErrConflict for duplicate IDs; every other
// backend error is returned unchanged so callers can report store
// unavailability.
package persistence

import (
	"context"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is a stored rule.
type Record struct {
	ID        grammar.RuleID
	Rule      grammar.Rule
	UpdatedAt time.Time
}

// Repository is the persistent rule collection behind the in-memory store.
// List returns rules in insertion order.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id grammar.RuleID) (Record, error)
	Insert(ctx context.Context, rule grammar.Rule) (Record, error)
	Replace(ctx context.Context, id grammar.RuleID, rule grammar.Rule) (Record, error)
	Delete(ctx context.Context, id grammar.RuleID) error
	ReplaceAll(ctx context.Context, rules []grammar.Rule) error
	Ping(ctx context.Context) error
	Close() error
}

// encodeRule returns the ID to store rule under and its JSON document.
// Rules without ID get a new UUID.
func encodeRule(rule grammar.Rule) (grammar.RuleID, []byte, error) {
	id := rule.ID
	if id == "" {
		id = grammar.RuleID(uuid.NewString())
	}
	raw, err := json.Marshal(rule)
	if err != nil {
		return "", nil, err
	}
	return id, raw, nil
}

func decodeRule(id string, raw []byte) (grammar.Rule, error) {
	var rule grammar.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return grammar.Rule{}, err
	}
	rule.ID = grammar.RuleID(id)
	return rule, nil
}
