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
	"fmt"
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// Evaluator evaluates FORMULA and FILTER expressions against a request.
// It is safe for concurrent use.
type Evaluator struct {
	resolver *Resolver
	regex    *regexCache
}

// NewEvaluator returns an evaluator resolving attributes with resolver and
// caching up to regexCacheSize compiled patterns.
func NewEvaluator(resolver *Resolver, regexCacheSize int64) (*Evaluator, error) {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	cache, err := newRegexCache(regexCacheSize)
	if err != nil {
		return nil, err
	}
	return &Evaluator{resolver: resolver, regex: cache}, nil
}

// Close releases the pattern cache.
func (ev *Evaluator) Close() {
	ev.regex.close()
}

// Evaluate returns the truth value of expr for ctx.
//
// Comparisons that cannot be evaluated (missing values, incompatible types,
// invalid patterns, failed casts) are false. A malformed tree or an unknown
// reference is returned as an error and must be treated as "no match".
func (ev *Evaluator) Evaluate(expr grammar.Expression, ctx EvaluationContext) (bool, error) {
	switch expr.Kind {
	case grammar.ExprConst:
		return expr.Const, nil
	case grammar.ExprAnd:
		for _, c := range expr.Children {
			ok, err := ev.Evaluate(c, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case grammar.ExprOr:
		for _, c := range expr.Children {
			ok, err := ev.Evaluate(c, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case grammar.ExprNot:
		if len(expr.Children) != 1 {
			return false, fmt.Errorf("%w: $not requires exactly one operand, got %d", grammar.ErrMalformedExpression, len(expr.Children))
		}
		ok, err := ev.Evaluate(expr.Children[0], ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case grammar.ExprCompare:
		return ev.compare(expr, ctx)
	}
	return false, fmt.Errorf("%w: empty expression", grammar.ErrMalformedExpression)
}

func (ev *Evaluator) compare(expr grammar.Expression, ctx EvaluationContext) (bool, error) {
	if !expr.Op.IsKnown() || len(expr.Operands) != expr.Op.Arity() {
		return false, fmt.Errorf("%w: %s with %d operands", grammar.ErrMalformedExpression, expr.Op, len(expr.Operands))
	}
	if expr.Op == grammar.OpCast {
		operand := expr.Operands[0]
		if !operand.IsCast() {
			return false, fmt.Errorf("%w: $cast operand must be a cast value", grammar.ErrMalformedExpression)
		}
		v, err := ev.operand(operand, ctx)
		if err != nil {
			return false, err
		}
		if operand.Kind == grammar.CastBool {
			return v.Type == TypeBool && v.Bool, nil
		}
		return !v.IsNone(), nil
	}

	left, err := ev.operand(expr.Operands[0], ctx)
	if err != nil {
		return false, err
	}
	right, err := ev.operand(expr.Operands[1], ctx)
	if err != nil {
		return false, err
	}
	return ev.apply(expr.Op, left, right), nil
}

// apply runs a binary operator on two resolved values.
func (ev *Evaluator) apply(op grammar.Operator, left, right Value) bool {
	if left.IsNone() || right.IsNone() {
		return false
	}
	switch op {
	case grammar.OpEq:
		eq, ok := equalValues(left, right)
		return ok && eq
	case grammar.OpNe:
		eq, ok := equalValues(left, right)
		return ok && !eq
	case grammar.OpGt, grammar.OpGe, grammar.OpLt, grammar.OpLe:
		cmp, ok := orderValues(left, right)
		if !ok {
			return false
		}
		switch op {
		case grammar.OpGt:
			return cmp > 0
		case grammar.OpGe:
			return cmp >= 0
		case grammar.OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}

	if left.Type != TypeString || right.Type != TypeString {
		return false
	}
	switch op {
	case grammar.OpContains:
		return strings.Contains(left.Str, right.Str)
	case grammar.OpStartsWith:
		return strings.HasPrefix(left.Str, right.Str)
	case grammar.OpEndsWith:
		return strings.HasSuffix(left.Str, right.Str)
	case grammar.OpRegex:
		re, err := ev.regex.compile(right.Str)
		if err != nil {
			return false
		}
		return re.MatchString(left.Str)
	}
	return false
}

// operand resolves a comparison operand to a runtime value.
func (ev *Evaluator) operand(v grammar.Value, ctx EvaluationContext) (Value, error) {
	switch v.Kind {
	case grammar.ValueAttr:
		if v.Attribute == nil {
			return noValue, fmt.Errorf("%w: $attribute without binding", grammar.ErrMalformedExpression)
		}
		return ev.resolver.Resolve(*v.Attribute, ctx)
	case grammar.ValueField:
		return ev.resolver.ResolveField(v.Str, ctx.Target)
	}
	if v.IsLiteral() {
		return literalValue(v)
	}
	if v.Inner == nil {
		return noValue, fmt.Errorf("%w: %s without nested value", grammar.ErrMalformedExpression, v.Kind)
	}
	inner, err := ev.operand(*v.Inner, ctx)
	if err != nil {
		return noValue, err
	}
	return convert(v.Kind, inner)
}

// literalValue converts a literal operand. Literal formats were checked when
// the rule was decoded, a failure here means the tree was built by hand.
func literalValue(v grammar.Value) (Value, error) {
	switch v.Kind {
	case grammar.ValueString:
		return stringValue(v.Str), nil
	case grammar.ValueNumber:
		return numberValue(v.Num), nil
	case grammar.ValueBool:
		return boolValue(v.Bool), nil
	case grammar.ValueHex:
		if h, ok := parseHex(v.Str); ok {
			return hexValue(h), nil
		}
	case grammar.ValueDateTime:
		if t, ok := parseDateTime(v.Str); ok {
			return dateTimeValue(t), nil
		}
	case grammar.ValueTime:
		if s, ok := parseTimeOfDay(v.Str); ok {
			return timeOfDayValue(s), nil
		}
	}
	return noValue, fmt.Errorf("%w: invalid literal %s", grammar.ErrMalformedExpression, v)
}

// convert applies a cast or date-part wrapper to an already resolved value.
func convert(kind grammar.ValueKind, inner Value) (Value, error) {
	switch kind {
	case grammar.CastString:
		return castToString(inner), nil
	case grammar.CastNumber:
		return castToNumber(inner), nil
	case grammar.CastHex:
		return castToHex(inner), nil
	case grammar.CastBool:
		return castToBool(inner), nil
	case grammar.CastDateTime:
		return castToDateTime(inner), nil
	case grammar.CastTime:
		return castToTime(inner), nil
	}
	t, ok := dateOf(inner)
	switch kind {
	case grammar.PartYear:
		if ok {
			return numberValue(float64(t.Year())), nil
		}
	case grammar.PartMonth:
		if ok {
			return numberValue(float64(int(t.Month()))), nil
		}
	case grammar.PartDayOfMonth:
		if ok {
			return numberValue(float64(t.Day())), nil
		}
	case grammar.PartDayOfWeek:
		if ok {
			return numberValue(float64(int(t.Weekday()))), nil
		}
	default:
		return noValue, fmt.Errorf("%w: unknown value kind %q", grammar.ErrMalformedExpression, kind)
	}
	return noValue, nil
}
