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
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// errNeedsFallback marks a rule whose outcome depends on per-target
// REFERENCE attributes and therefore cannot be turned into a predicate.
var errNeedsFallback = errors.New("rule depends on per-target attributes")

// CompileResult is the outcome of compiling the rules for one right into a
// listing filter.
//
// Predicate only contains $field operands and literals. It is
// OR(permit rules) AND NOT(OR(deny rules)) after constant folding, and the
// constant false when no permit rule can apply.
//
// When FallbackRequired is set, the rules listed in FallbackRuleIDs could not
// be compiled. Predicate then only covers the remaining rules and callers must
// decide the affected objects one by one.
type CompileResult struct {
	Predicate        grammar.Expression `json:"predicate"`
	FallbackRequired bool               `json:"fallbackRequired"`
	FallbackRuleIDs  []grammar.RuleID   `json:"fallbackRuleIds"`
	PermitRuleIDs    []grammar.RuleID   `json:"permitRuleIds"`
	DenyRuleIDs      []grammar.RuleID   `json:"denyRuleIds"`
}

type compileConfig struct {
	fragment string
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

// WithFragment limits FILTER conditions to rules whose FILTER.FRAGMENT
// matches fragment. Rules without FRAGMENT always contribute their FILTER.
func WithFragment(fragment string) CompileOption {
	return func(c *compileConfig) { c.fragment = fragment }
}

// Compile turns the rules applicable to right into a predicate for subject.
func (e *Engine) Compile(right grammar.Right, subject Subject, opts ...CompileOption) (*CompileResult, error) {
	return e.CompileContext(EvaluationContext{Subject: subject}, right, opts...)
}

// CompileContext partially evaluates every rule applicable to right with the
// subject of ctx: CLAIM and GLOBAL attributes become literals and constant
// subtrees are folded. What remains refers to target fields only.
func (e *Engine) CompileContext(ctx EvaluationContext, right grammar.Right, opts ...CompileOption) (*CompileResult, error) {
	if e == nil || e.source == nil {
		return nil, fmt.Errorf("ABAC-COMPILE: engine is not initialized")
	}
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx.Right = right
	ctx.Target = TargetDescriptor{}

	res := &CompileResult{
		FallbackRuleIDs: []grammar.RuleID{},
		PermitRuleIDs:   []grammar.RuleID{},
		DenyRuleIDs:     []grammar.RuleID{},
	}
	var permits, denies []grammar.Expression
	for _, rule := range e.source.Snapshot().Rules() {
		if !grammar.RightsCover(rule.Rights, right) {
			continue
		}
		pred, err := e.compileRule(rule, ctx, cfg)
		if errors.Is(err, errNeedsFallback) {
			res.FallbackRuleIDs = append(res.FallbackRuleIDs, rule.ID)
			continue
		}
		if err != nil {
			e.log.LogDebug("rule %s skipped during compilation: %v", rule.ID, err)
			continue
		}
		if pred.IsConst(false) {
			continue
		}
		switch {
		case rule.IsDeny():
			denies = append(denies, pred)
			res.DenyRuleIDs = append(res.DenyRuleIDs, rule.ID)
		case rule.IsPermit():
			permits = append(permits, pred)
			res.PermitRuleIDs = append(res.PermitRuleIDs, rule.ID)
		}
	}

	res.FallbackRequired = len(res.FallbackRuleIDs) > 0
	permitted := fold(grammar.Or(permits...))
	denied := fold(grammar.Or(denies...))
	res.Predicate = fold(grammar.And(permitted, fold(grammar.Not(denied))))
	return res, nil
}

// compileRule returns the predicate under which rule applies to a target.
// FILTER narrows what a permit rule shows. Decide ignores FILTER, so a deny
// rule covers its objects and formula regardless of it.
func (e *Engine) compileRule(rule grammar.Rule, ctx EvaluationContext, cfg compileConfig) (grammar.Expression, error) {
	for _, a := range rule.Attributes {
		switch a.Source {
		case grammar.SourceClaim:
			if _, ok := ctx.Subject.Claims[a.Name]; !ok {
				return grammar.Bool(false), nil
			}
		case grammar.SourceReference:
			return grammar.Expression{}, errNeedsFallback
		}
	}
	if rule.Formula.IsZero() {
		return grammar.Bool(false), nil
	}
	formula, err := e.partial(rule.Formula, ctx)
	if err != nil {
		return grammar.Expression{}, err
	}
	if formula.IsConst(false) {
		return formula, nil
	}

	parts := []grammar.Expression{objectsPredicate(rule.Objects), formula}
	if rule.IsPermit() && rule.Filter != nil && rule.Filter.FragmentMatches(cfg.fragment) {
		cond, err := e.partial(rule.Filter.Condition, ctx)
		if err != nil {
			return grammar.Expression{}, err
		}
		parts = append(parts, cond)
	}
	return fold(grammar.And(parts...)), nil
}

// partial evaluates everything in x that does not depend on the target.
func (e *Engine) partial(x grammar.Expression, ctx EvaluationContext) (grammar.Expression, error) {
	switch x.Kind {
	case grammar.ExprConst:
		return x, nil
	case grammar.ExprAnd, grammar.ExprOr:
		children := make([]grammar.Expression, 0, len(x.Children))
		for _, c := range x.Children {
			p, err := e.partial(c, ctx)
			if err != nil {
				return grammar.Expression{}, err
			}
			children = append(children, p)
		}
		return fold(grammar.Expression{Kind: x.Kind, Children: children}), nil
	case grammar.ExprNot:
		if len(x.Children) != 1 {
			return grammar.Expression{}, fmt.Errorf("%w: $not requires exactly one operand", grammar.ErrMalformedExpression)
		}
		p, err := e.partial(x.Children[0], ctx)
		if err != nil {
			return grammar.Expression{}, err
		}
		return fold(grammar.Not(p)), nil
	case grammar.ExprCompare:
		return e.partialCompare(x, ctx)
	}
	return grammar.Expression{}, fmt.Errorf("%w: empty expression", grammar.ErrMalformedExpression)
}

// partialOperand is an operand after partial evaluation: either a resolved
// runtime value or a residual operand that still refers to target fields.
// Literals carry both.
type partialOperand struct {
	resolved bool
	value    Value
	residual grammar.Value
}

func (e *Engine) partialCompare(x grammar.Expression, ctx EvaluationContext) (grammar.Expression, error) {
	if !x.Op.IsKnown() || len(x.Operands) != x.Op.Arity() {
		return grammar.Expression{}, fmt.Errorf("%w: %s with %d operands", grammar.ErrMalformedExpression, x.Op, len(x.Operands))
	}
	ops := make([]partialOperand, len(x.Operands))
	decided := true
	for i, o := range x.Operands {
		p, err := e.partialValue(o, ctx)
		if err != nil {
			return grammar.Expression{}, err
		}
		ops[i] = p
		decided = decided && p.resolved
	}

	if decided {
		ok, err := e.evaluator.Evaluate(x, ctx)
		if err != nil {
			return grammar.Expression{}, err
		}
		return grammar.Bool(ok), nil
	}
	// No value on a resolved side fails every binary operator.
	for _, p := range ops {
		if p.resolved && p.value.IsNone() {
			return grammar.Bool(false), nil
		}
	}

	operands := make([]grammar.Value, len(ops))
	for i, p := range ops {
		operands[i] = p.residual
		if !p.resolved || p.residual.Kind != "" {
			continue
		}
		lit, ok := literalOf(p.value)
		if !ok {
			return grammar.Expression{}, fmt.Errorf("%w: value %q has no literal form", errNeedsFallback, p.value.String())
		}
		operands[i] = lit
	}
	return grammar.Compare(x.Op, operands...), nil
}

// partialValue resolves CLAIM and GLOBAL operands and keeps $field operands.
func (e *Engine) partialValue(v grammar.Value, ctx EvaluationContext) (partialOperand, error) {
	switch v.Kind {
	case grammar.ValueField:
		return partialOperand{residual: v}, nil
	case grammar.ValueAttr:
		if v.Attribute == nil {
			return partialOperand{}, fmt.Errorf("%w: $attribute without binding", grammar.ErrMalformedExpression)
		}
		if v.Attribute.Source == grammar.SourceReference {
			return partialOperand{}, errNeedsFallback
		}
		val, err := e.resolver.Resolve(*v.Attribute, ctx)
		if err != nil {
			return partialOperand{}, err
		}
		return partialOperand{resolved: true, value: val}, nil
	}
	if v.IsLiteral() {
		val, err := literalValue(v)
		if err != nil {
			return partialOperand{}, err
		}
		return partialOperand{resolved: true, value: val, residual: v}, nil
	}
	if v.Inner == nil {
		return partialOperand{}, fmt.Errorf("%w: %s without nested value", grammar.ErrMalformedExpression, v.Kind)
	}
	inner, err := e.partialValue(*v.Inner, ctx)
	if err != nil {
		return partialOperand{}, err
	}
	if !inner.resolved {
		return partialOperand{residual: grammar.Wrap(v.Kind, inner.residual)}, nil
	}
	val, err := convert(v.Kind, inner.value)
	if err != nil {
		return partialOperand{}, err
	}
	return partialOperand{resolved: true, value: val}, nil
}

// literalOf renders a runtime value as an operand literal.
func literalOf(v Value) (grammar.Value, bool) {
	switch v.Type {
	case TypeString:
		if strings.HasPrefix(v.Str, "$") {
			return grammar.Value{}, false
		}
		return grammar.StrVal(v.Str), true
	case TypeNumber:
		return grammar.NumVal(v.Num), true
	case TypeHex:
		return grammar.HexVal(v.String()), true
	case TypeDateTime:
		return grammar.DateTimeVal(v.DateTime), true
	case TypeTime:
		return grammar.TimeVal(v.String()), true
	case TypeBool:
		return grammar.BoolVal(v.Bool), true
	}
	return grammar.Value{}, false
}

// objectsPredicate expresses the object patterns of a rule over the
// descriptor fields. An empty list is true.
func objectsPredicate(patterns []grammar.ObjectPattern) grammar.Expression {
	if len(patterns) == 0 {
		return grammar.Bool(true)
	}
	alternatives := make([]grammar.Expression, 0, len(patterns))
	for _, p := range patterns {
		alternatives = append(alternatives, fold(grammar.And(
			routePredicate(p.Route),
			identifierPredicate(PathIdentifiable, p.Identifiable),
			identifierPredicate(PathReferable, p.Referable),
			identifierPredicate(PathFragment, p.Fragment),
			identifierPredicate(PathDescriptor, p.Descriptor),
		)))
	}
	return fold(grammar.Or(alternatives...))
}

func routePredicate(pattern string) grammar.Expression {
	if pattern == "" || pattern == "*" || pattern == "**" {
		return grammar.Bool(true)
	}
	field := grammar.Field(PathRoute)
	pat := normalizeRoute(pattern)

	if i := strings.Index(pat, "**"); i >= 0 {
		prefix, suffix := pat[:i], pat[i+2:]
		parts := []grammar.Expression{
			grammar.Compare(grammar.OpStartsWith, field, grammar.StrVal(prefix)),
		}
		if suffix != "" {
			parts = append(parts, grammar.Compare(grammar.OpEndsWith, field, grammar.StrVal(suffix)))
		}
		below := fold(grammar.And(parts...))
		if suffix == "" && strings.HasSuffix(prefix, "/") && prefix != "/" {
			return grammar.Or(grammar.Compare(grammar.OpEq, field, grammar.StrVal(strings.TrimSuffix(prefix, "/"))), below)
		}
		return below
	}
	if strings.HasSuffix(pat, "/*") {
		base := strings.TrimSuffix(pat, "*")
		if base == "/" {
			return grammar.Compare(grammar.OpNe, field, grammar.StrVal("/"))
		}
		return grammar.Compare(grammar.OpStartsWith, field, grammar.StrVal(base))
	}
	return grammar.Compare(grammar.OpEq, field, grammar.StrVal(pat))
}

func identifierPredicate(path, pattern string) grammar.Expression {
	switch {
	case pattern == "" || pattern == "*":
		return grammar.Bool(true)
	case strings.HasSuffix(pattern, "*"):
		return grammar.Compare(grammar.OpStartsWith, grammar.Field(path), grammar.StrVal(strings.TrimSuffix(pattern, "*")))
	}
	return grammar.Compare(grammar.OpEq, grammar.Field(path), grammar.StrVal(pattern))
}

// fold removes constants from And/Or/Not nodes one level deep, drops
// duplicate children and unwraps single-child conjunctions and disjunctions.
// Children are expected to be folded already.
func fold(x grammar.Expression) grammar.Expression {
	switch x.Kind {
	case grammar.ExprNot:
		if len(x.Children) != 1 {
			return x
		}
		c := x.Children[0]
		switch {
		case c.Kind == grammar.ExprConst:
			return grammar.Bool(!c.Const)
		case c.Kind == grammar.ExprNot && len(c.Children) == 1:
			return c.Children[0]
		}
		return x
	case grammar.ExprAnd, grammar.ExprOr:
		// The neutral element is true for And and false for Or.
		neutral := x.Kind == grammar.ExprAnd
		out := make([]grammar.Expression, 0, len(x.Children))
		seen := make(map[string]struct{}, len(x.Children))
		for _, c := range x.Children {
			if c.Kind == grammar.ExprConst {
				if c.Const != neutral {
					return grammar.Bool(!neutral)
				}
				continue
			}
			key := foldKey(c)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
		switch len(out) {
		case 0:
			return grammar.Bool(neutral)
		case 1:
			return out[0]
		}
		return grammar.Expression{Kind: x.Kind, Children: out}
	}
	return x
}

// foldKey identifies an expression for deduplication. The JSON encoding
// keeps value kinds apart where String renders them alike.
func foldKey(x grammar.Expression) string {
	raw, err := json.Marshal(x)
	if err != nil {
		return x.String()
	}
	return string(raw)
}
