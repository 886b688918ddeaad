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

// This file implements the ABAC decision engine: selecting candidate rules
// for a requested right, matching them against the target, evaluating their
// formulas and combining the outcomes with deny-overrides.

package auth

import (
	"fmt"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/logger"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// Outcome is the result of a decision.
type Outcome uint8

// Decision outcomes. NotApplicable means no rule matched; callers treat it
// as deny.
const (
	NotApplicable Outcome = iota
	Permit
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Permit:
		return "PERMIT"
	case Deny:
		return "DENY"
	}
	return "NOT_APPLICABLE"
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "PERMIT":
		*o = Permit
	case "DENY":
		*o = Deny
	case "NOT_APPLICABLE":
		*o = NotApplicable
	default:
		return fmt.Errorf("invalid outcome %q", s)
	}
	return nil
}

// Decision is the outcome of one request together with the IDs of the rules
// that produced it, in rule order.
type Decision struct {
	Outcome        Outcome          `json:"outcome"`
	MatchedRuleIDs []grammar.RuleID `json:"matchedRuleIds"`
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Outcome == Permit
}

// Engine decides requests against the rules of a RuleSource. It keeps no
// per-request state and is safe for concurrent use.
type Engine struct {
	source    RuleSource
	resolver  *Resolver
	evaluator *Evaluator
	log       *logger.Logger
}

type engineConfig struct {
	clock          Clock
	regexCacheSize int64
	log            *logger.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

// WithClock sets the clock GLOBAL time attributes read from.
func WithClock(clock Clock) EngineOption {
	return func(c *engineConfig) { c.clock = clock }
}

// WithRegexCacheSize bounds the number of cached $regex patterns.
func WithRegexCacheSize(n int64) EngineOption {
	return func(c *engineConfig) { c.regexCacheSize = n }
}

// WithLogger sets the logger used for skipped rules.
func WithLogger(l *logger.Logger) EngineOption {
	return func(c *engineConfig) { c.log = l }
}

// NewEngine returns an engine reading rules from source.
func NewEngine(source RuleSource, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("ABAC-ENGINE-NEW: rule source is nil")
	}
	cfg := engineConfig{clock: SystemClock, regexCacheSize: DefaultRegexCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.New("ABAC")
	}
	resolver := NewResolver(cfg.clock)
	evaluator, err := NewEvaluator(resolver, cfg.regexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ABAC-ENGINE-NEW: %w", err)
	}
	return &Engine{source: source, resolver: resolver, evaluator: evaluator, log: cfg.log}, nil
}

// Close releases the engine's caches.
func (e *Engine) Close() {
	e.evaluator.Close()
}

// Decide evaluates a request of subject for right on target.
func (e *Engine) Decide(subject Subject, right grammar.Right, target TargetDescriptor) Decision {
	return e.DecideContext(EvaluationContext{Subject: subject}, right, target)
}

// DecideContext evaluates a request against the current rule snapshot.
//
// A rule applies when one of its rights covers right, one of its objects
// matches target, its ATTRIBUTES are available and its FORMULA is true.
// Any applicable deny rule makes the outcome Deny; otherwise any applicable
// permit rule makes it Permit; otherwise it is NotApplicable. Rules that fail
// to evaluate are skipped.
func (e *Engine) DecideContext(ctx EvaluationContext, right grammar.Right, target TargetDescriptor) Decision {
	ctx.Right = right
	ctx.Target = target

	var permits, denies []grammar.RuleID
	for _, rule := range e.source.Snapshot().Rules() {
		ok, err := e.applies(rule, ctx)
		if err != nil {
			e.log.LogDebug("rule %s skipped: %v", rule.ID, err)
			continue
		}
		if !ok {
			continue
		}
		switch {
		case rule.IsDeny():
			denies = append(denies, rule.ID)
		case rule.IsPermit():
			permits = append(permits, rule.ID)
		}
	}

	switch {
	case len(denies) > 0:
		return Decision{Outcome: Deny, MatchedRuleIDs: denies}
	case len(permits) > 0:
		return Decision{Outcome: Permit, MatchedRuleIDs: permits}
	}
	return Decision{Outcome: NotApplicable, MatchedRuleIDs: []grammar.RuleID{}}
}

func (e *Engine) applies(rule grammar.Rule, ctx EvaluationContext) (bool, error) {
	if !grammar.RightsCover(rule.Rights, ctx.Right) {
		return false, nil
	}
	if !MatchesAny(rule.Objects, ctx.Target) {
		return false, nil
	}
	if !e.attributesAvailable(rule.Attributes, ctx) {
		return false, nil
	}
	if rule.Formula.IsZero() {
		return false, nil
	}
	return e.evaluator.Evaluate(rule.Formula, ctx)
}
