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
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/google/uuid"
)

// RuleStore is the read/write surface over a collection of rules.
//
// Implementations report unknown IDs with common.NewErrNotFound, invalid rules
// with common.NewErrBadRequest and duplicate IDs with common.NewErrConflict.
// Backend failures are returned unchanged.
//
// Rules passed in and handed out are copies: callers may modify them without
// affecting stored rules or published snapshots.
type RuleStore interface {
	LoadRules(ctx context.Context, rules []grammar.Rule) error
	AddRule(ctx context.Context, rule grammar.Rule) (grammar.RuleID, error)
	UpdateRule(ctx context.Context, id grammar.RuleID, rule grammar.Rule) error
	RemoveRule(ctx context.Context, id grammar.RuleID) error
	GetRule(ctx context.Context, id grammar.RuleID) (grammar.Rule, error)
	ListRules(ctx context.Context) ([]grammar.Rule, error)
}

// RuleSource hands out immutable rule snapshots to the engine.
type RuleSource interface {
	Snapshot() *RuleSet
}

// RuleSet is an immutable, ordered set of rules. Callers must not modify the
// rules it returns.
type RuleSet struct {
	rules []grammar.Rule
	index map[grammar.RuleID]int
}

func newRuleSet(rules []grammar.Rule) *RuleSet {
	rs := &RuleSet{rules: rules, index: make(map[grammar.RuleID]int, len(rules))}
	for i, r := range rules {
		rs.index[r.ID] = i
	}
	return rs
}

// Rules returns the rules in load order.
func (rs *RuleSet) Rules() []grammar.Rule {
	if rs == nil {
		return nil
	}
	return rs.rules
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Get returns the rule with the given ID.
func (rs *RuleSet) Get(id grammar.RuleID) (grammar.Rule, bool) {
	if rs == nil {
		return grammar.Rule{}, false
	}
	i, ok := rs.index[id]
	if !ok {
		return grammar.Rule{}, false
	}
	return rs.rules[i], true
}

// MemoryRuleStore keeps rules in memory and publishes a fresh RuleSet on
// every change. Readers never observe a partially applied update; writers
// are serialized.
type MemoryRuleStore struct {
	mu      sync.Mutex
	current atomic.Pointer[RuleSet]
	strict  bool
	newID   func() grammar.RuleID
}

// MemoryStoreOption configures a MemoryRuleStore.
type MemoryStoreOption func(*MemoryRuleStore)

// WithStrictValidation makes the store reject rules without OBJECTS.
func WithStrictValidation() MemoryStoreOption {
	return func(s *MemoryRuleStore) { s.strict = true }
}

// WithIDGenerator replaces the UUID generator used for rules without ID.
func WithIDGenerator(fn func() grammar.RuleID) MemoryStoreOption {
	return func(s *MemoryRuleStore) { s.newID = fn }
}

// NewMemoryRuleStore returns an empty store.
func NewMemoryRuleStore(opts ...MemoryStoreOption) *MemoryRuleStore {
	s := &MemoryRuleStore{
		newID: func() grammar.RuleID { return grammar.RuleID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(newRuleSet(nil))
	return s
}

// Snapshot returns the current rule set.
func (s *MemoryRuleStore) Snapshot() *RuleSet {
	return s.current.Load()
}

func (s *MemoryRuleStore) validate(rule grammar.Rule) error {
	if s.strict {
		return rule.ValidateStrict()
	}
	return rule.Validate()
}

// LoadRules replaces all rules. Either every rule is accepted or the store
// keeps its previous content.
func (s *MemoryRuleStore) LoadRules(ctx context.Context, rules []grammar.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]grammar.Rule, 0, len(rules))
	seen := make(map[grammar.RuleID]struct{}, len(rules))
	for i, r := range rules {
		if err := s.validate(r); err != nil {
			return common.NewErrBadRequest(fmt.Sprintf("RULESTORE-INVALIDRULE rule %d: %v", i, err))
		}
		r = r.Clone()
		if r.ID == "" {
			r.ID = s.newID()
		}
		if _, dup := seen[r.ID]; dup {
			return common.NewErrConflict(fmt.Sprintf("RULESTORE-DUPLICATEID rule id %q", r.ID))
		}
		seen[r.ID] = struct{}{}
		next = append(next, r)
	}
	s.current.Store(newRuleSet(next))
	return nil
}

// AddRule stores rule and returns its ID. A rule without ID gets a UUID.
func (s *MemoryRuleStore) AddRule(ctx context.Context, rule grammar.Rule) (grammar.RuleID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.validate(rule); err != nil {
		return "", common.NewErrBadRequest(fmt.Sprintf("RULESTORE-INVALIDRULE %v", err))
	}

	rule = rule.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	if rule.ID == "" {
		rule.ID = s.newID()
	}
	if _, exists := cur.Get(rule.ID); exists {
		return "", common.NewErrConflict(fmt.Sprintf("RULESTORE-DUPLICATEID rule id %q", rule.ID))
	}
	next := make([]grammar.Rule, 0, cur.Len()+1)
	next = append(next, cur.rules...)
	next = append(next, rule)
	s.current.Store(newRuleSet(next))
	return rule.ID, nil
}

// UpdateRule replaces the rule stored under id, keeping its position.
func (s *MemoryRuleStore) UpdateRule(ctx context.Context, id grammar.RuleID, rule grammar.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validate(rule); err != nil {
		return common.NewErrBadRequest(fmt.Sprintf("RULESTORE-INVALIDRULE %v", err))
	}
	rule = rule.Clone()
	rule.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	i, ok := cur.index[id]
	if !ok {
		return common.NewErrNotFound(string(id))
	}
	next := make([]grammar.Rule, cur.Len())
	copy(next, cur.rules)
	next[i] = rule
	s.current.Store(newRuleSet(next))
	return nil
}

// RemoveRule deletes the rule stored under id.
func (s *MemoryRuleStore) RemoveRule(ctx context.Context, id grammar.RuleID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	i, ok := cur.index[id]
	if !ok {
		return common.NewErrNotFound(string(id))
	}
	next := make([]grammar.Rule, 0, cur.Len()-1)
	next = append(next, cur.rules[:i]...)
	next = append(next, cur.rules[i+1:]...)
	s.current.Store(newRuleSet(next))
	return nil
}

// GetRule returns the rule stored under id.
func (s *MemoryRuleStore) GetRule(ctx context.Context, id grammar.RuleID) (grammar.Rule, error) {
	if err := ctx.Err(); err != nil {
		return grammar.Rule{}, err
	}
	r, ok := s.Snapshot().Get(id)
	if !ok {
		return grammar.Rule{}, common.NewErrNotFound(string(id))
	}
	return r.Clone(), nil
}

// ListRules returns all rules in load order.
func (s *MemoryRuleStore) ListRules(ctx context.Context) ([]grammar.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rules := s.Snapshot().Rules()
	out := make([]grammar.Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out, nil
}
