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

package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// ExprKind tags the variant held by an Expression.
type ExprKind uint8

// Expression variants.
const (
	ExprAnd ExprKind = iota + 1
	ExprOr
	ExprNot
	ExprCompare
	ExprConst
)

// Operator is a comparison operator. The constants equal the JSON keys.
type Operator string

// Comparison operators.
const (
	OpEq         Operator = "$eq"
	OpNe         Operator = "$ne"
	OpGt         Operator = "$gt"
	OpGe         Operator = "$ge"
	OpLt         Operator = "$lt"
	OpLe         Operator = "$le"
	OpContains   Operator = "$contains"
	OpStartsWith Operator = "$starts-with"
	OpEndsWith   Operator = "$ends-with"
	OpRegex      Operator = "$regex"
	OpCast       Operator = "$cast"
)

// ErrMalformedExpression marks structural problems of an expression tree.
var ErrMalformedExpression = errors.New("malformed expression")

// Arity returns the operand count the operator requires.
func (op Operator) Arity() int {
	if op == OpCast {
		return 1
	}
	return 2
}

// IsKnown reports whether op is one of the comparison operators.
func (op Operator) IsKnown() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpContains, OpStartsWith, OpEndsWith, OpRegex, OpCast:
		return true
	}
	return false
}

// Expression is a node of a FORMULA or FILTER condition.
//
// And and Or hold their operands in Children, Not holds exactly one child,
// Compare holds an operator with its operands and Const is a boolean constant
// ({"$boolean": true}).
type Expression struct {
	Kind     ExprKind
	Children []Expression
	Op       Operator
	Operands []Value
	Const    bool
}

// And returns the conjunction of xs. An empty conjunction is true.
func And(xs ...Expression) Expression {
	if xs == nil {
		xs = []Expression{}
	}
	return Expression{Kind: ExprAnd, Children: xs}
}

// Or returns the disjunction of xs. An empty disjunction is false.
func Or(xs ...Expression) Expression {
	if xs == nil {
		xs = []Expression{}
	}
	return Expression{Kind: ExprOr, Children: xs}
}

// Not negates x.
func Not(x Expression) Expression {
	return Expression{Kind: ExprNot, Children: []Expression{x}}
}

// Compare returns a comparison of operands with op.
func Compare(op Operator, operands ...Value) Expression {
	if operands == nil {
		operands = []Value{}
	}
	return Expression{Kind: ExprCompare, Op: op, Operands: operands}
}

// Bool returns a boolean constant.
func Bool(b bool) Expression {
	return Expression{Kind: ExprConst, Const: b}
}

// Clone returns a deep copy of e.
func (e Expression) Clone() Expression {
	out := e
	if e.Children != nil {
		out.Children = make([]Expression, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.Clone()
		}
	}
	if e.Operands != nil {
		out.Operands = make([]Value, len(e.Operands))
		for i, o := range e.Operands {
			out.Operands[i] = o.Clone()
		}
	}
	return out
}

// IsZero reports whether e is unset.
func (e Expression) IsZero() bool {
	return e.Kind == 0
}

// IsConst reports whether e is the constant b.
func (e Expression) IsConst(b bool) bool {
	return e.Kind == ExprConst && e.Const == b
}

// Validate checks the structure of the tree: a known variant at every node,
// exactly one child under Not, the operator's arity for Compare and valid
// operands.
func (e Expression) Validate() error {
	switch e.Kind {
	case ExprAnd, ExprOr:
		for i, c := range e.Children {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", e.keyword(), i, err)
			}
		}
	case ExprNot:
		if len(e.Children) != 1 {
			return fmt.Errorf("%w: $not requires exactly one operand, got %d", ErrMalformedExpression, len(e.Children))
		}
		if err := e.Children[0].Validate(); err != nil {
			return fmt.Errorf("$not: %w", err)
		}
	case ExprCompare:
		if !e.Op.IsKnown() {
			return fmt.Errorf("%w: unknown operator %q", ErrMalformedExpression, e.Op)
		}
		if len(e.Operands) != e.Op.Arity() {
			return fmt.Errorf("%w: %s requires %d operands, got %d", ErrMalformedExpression, e.Op, e.Op.Arity(), len(e.Operands))
		}
		for i, o := range e.Operands {
			if err := o.Validate(); err != nil {
				return fmt.Errorf("%w: %s operand %d: %v", ErrMalformedExpression, e.Op, i, err)
			}
		}
		if e.Op == OpCast && !e.Operands[0].IsCast() {
			return fmt.Errorf("%w: $cast operand must be a cast value, got %s", ErrMalformedExpression, e.Operands[0].Kind)
		}
	case ExprConst:
	default:
		return fmt.Errorf("%w: empty expression", ErrMalformedExpression)
	}
	return nil
}

// Walk visits every operand of every comparison in e.
func (e Expression) Walk(fn func(Value)) {
	switch e.Kind {
	case ExprAnd, ExprOr, ExprNot:
		for _, c := range e.Children {
			c.Walk(fn)
		}
	case ExprCompare:
		for _, o := range e.Operands {
			o.Walk(fn)
		}
	}
}

// References returns the REFERENCE attribute paths used anywhere in e.
func (e Expression) References() []string {
	var out []string
	e.Walk(func(v Value) {
		if v.Kind == ValueAttr && v.Attribute != nil && v.Attribute.Source == SourceReference {
			out = append(out, v.Attribute.Name)
		}
	})
	return out
}

// Fields returns the $field paths used anywhere in e.
func (e Expression) Fields() []string {
	var out []string
	e.Walk(func(v Value) {
		if v.Kind == ValueField {
			out = append(out, v.Str)
		}
	})
	return out
}

func (e Expression) keyword() string {
	switch e.Kind {
	case ExprAnd:
		return "$and"
	case ExprOr:
		return "$or"
	case ExprNot:
		return "$not"
	case ExprConst:
		return "$boolean"
	case ExprCompare:
		return string(e.Op)
	}
	return "?"
}

// String renders e in a compact prefix notation for logs.
func (e Expression) String() string {
	var b strings.Builder
	e.writeTo(&b)
	return b.String()
}

func (e Expression) writeTo(b *strings.Builder) {
	switch e.Kind {
	case ExprConst:
		if e.Const {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return
	case ExprCompare:
		b.WriteString(string(e.Op))
		b.WriteByte('(')
		for i, o := range e.Operands {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.String())
		}
		b.WriteByte(')')
		return
	}
	b.WriteString(e.keyword())
	b.WriteByte('(')
	for i, c := range e.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.writeTo(b)
	}
	b.WriteByte(')')
}

// MarshalJSON implements json.Marshaler.
func (e Expression) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case ExprAnd, ExprOr:
		children := e.Children
		if children == nil {
			children = []Expression{}
		}
		return json.Marshal(map[string]any{e.keyword(): children})
	case ExprNot:
		if len(e.Children) != 1 {
			return nil, fmt.Errorf("%w: $not requires exactly one operand", ErrMalformedExpression)
		}
		return json.Marshal(map[string]any{"$not": e.Children[0]})
	case ExprConst:
		return json.Marshal(map[string]any{"$boolean": e.Const})
	case ExprCompare:
		operands := e.Operands
		if operands == nil {
			operands = []Value{}
		}
		return json.Marshal(map[string]any{string(e.Op): operands})
	}
	return nil, fmt.Errorf("%w: cannot marshal empty expression", ErrMalformedExpression)
}

// UnmarshalJSON implements json.Unmarshaler. The object must carry exactly one
// operator key; the decoded tree is validated.
func (e *Expression) UnmarshalJSON(b []byte) error {
	var raw map[string]rawJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("expression: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("%w: expected exactly one operator key, got %d", ErrMalformedExpression, len(raw))
	}
	var out Expression
	for k, body := range raw {
		switch k {
		case "$and", "$or":
			children := []Expression{}
			if err := json.Unmarshal(body, &children); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out = Expression{Kind: ExprAnd, Children: children}
			if k == "$or" {
				out.Kind = ExprOr
			}
		case "$not":
			var child Expression
			if err := json.Unmarshal(body, &child); err != nil {
				return fmt.Errorf("$not: %w", err)
			}
			out = Not(child)
		case "$boolean":
			var c bool
			if err := json.Unmarshal(body, &c); err != nil {
				return fmt.Errorf("$boolean: %w", err)
			}
			out = Bool(c)
		default:
			op := Operator(k)
			if !op.IsKnown() {
				return fmt.Errorf("%w: unknown operator %q", ErrMalformedExpression, k)
			}
			operands := []Value{}
			if err := json.Unmarshal(body, &operands); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out = Compare(op, operands...)
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}
