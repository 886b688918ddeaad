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
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// FieldColumnMapping maps $field paths (e.g. "$sm#idShort") to SQL column
// expressions (e.g. "s.id_short").
type FieldColumnMapping map[string]string

// ErrNotSQLRepresentable is returned by ToSQL for expressions that have no
// faithful SQL form, such as attribute operands.
var ErrNotSQLRepresentable = errors.New("expression is not representable in SQL")

var sqlComparisonTemplates = map[Operator]string{
	OpEq: "? = ?",
	OpNe: "? != ?",
	OpGt: "? > ?",
	OpGe: "? >= ?",
	OpLt: "? < ?",
	OpLe: "? <= ?",
}

var sqlCastTypes = map[ValueKind]string{
	CastString:   "TEXT",
	CastNumber:   "DOUBLE PRECISION",
	CastBool:     "BOOLEAN",
	CastDateTime: "TIMESTAMPTZ",
	CastTime:     "TIME",
}

var sqlDateParts = map[ValueKind]string{
	PartYear:       "YEAR",
	PartMonth:      "MONTH",
	PartDayOfMonth: "DAY",
	PartDayOfWeek:  "DOW",
}

// ToSQL converts e into a goqu expression usable in a WHERE clause.
//
// Field operands are looked up in columns; an unmapped field, an attribute
// operand or a $cast comparison yields ErrNotSQLRepresentable.
//
// Example:
//
//	cond := grammar.Compare(grammar.OpEq, grammar.Field("$sm#idShort"), grammar.StrVal("motor"))
//	where, err := cond.ToSQL(grammar.FieldColumnMapping{"$sm#idShort": "s.id_short"})
//	ds = ds.Where(where)
func (e Expression) ToSQL(columns FieldColumnMapping) (exp.Expression, error) {
	switch e.Kind {
	case ExprConst:
		if e.Const {
			return goqu.L("TRUE"), nil
		}
		return goqu.L("FALSE"), nil
	case ExprAnd, ExprOr:
		if len(e.Children) == 0 {
			return Bool(e.Kind == ExprAnd).ToSQL(columns)
		}
		parts := make([]exp.Expression, 0, len(e.Children))
		for _, c := range e.Children {
			p, err := c.ToSQL(columns)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		if e.Kind == ExprAnd {
			return goqu.And(parts...), nil
		}
		return goqu.Or(parts...), nil
	case ExprNot:
		if len(e.Children) != 1 {
			return nil, fmt.Errorf("%w: $not requires exactly one operand", ErrMalformedExpression)
		}
		inner, err := e.Children[0].ToSQL(columns)
		if err != nil {
			return nil, err
		}
		return goqu.L("NOT (?)", inner), nil
	case ExprCompare:
		return compareToSQL(e, columns)
	}
	return nil, fmt.Errorf("%w: empty expression", ErrMalformedExpression)
}

func compareToSQL(e Expression, columns FieldColumnMapping) (exp.Expression, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.Op == OpCast {
		return nil, fmt.Errorf("%w: %s", ErrNotSQLRepresentable, e.Op)
	}
	left, err := operandToSQL(e.Operands[0], columns)
	if err != nil {
		return nil, err
	}
	right, err := operandToSQL(e.Operands[1], columns)
	if err != nil {
		return nil, err
	}
	if tpl, ok := sqlComparisonTemplates[e.Op]; ok {
		return exp.NewLiteralExpression(tpl, left, right), nil
	}

	// String tests against a literal use LIKE with escaped wildcards, tests
	// against a column use position functions.
	if lit := e.Operands[1]; lit.Kind == ValueString {
		var pattern string
		switch e.Op {
		case OpContains:
			pattern = "%" + escapeLike(lit.Str) + "%"
		case OpStartsWith:
			pattern = escapeLike(lit.Str) + "%"
		case OpEndsWith:
			pattern = "%" + escapeLike(lit.Str)
		case OpRegex:
			return exp.NewLiteralExpression("? ~ ?", left, right), nil
		}
		return exp.NewLiteralExpression(`? LIKE ? ESCAPE '\'`, left, pattern), nil
	}
	switch e.Op {
	case OpContains:
		return exp.NewLiteralExpression("strpos(?, ?) > 0", left, right), nil
	case OpStartsWith:
		return exp.NewLiteralExpression("starts_with(?, ?)", left, right), nil
	case OpEndsWith:
		return exp.NewLiteralExpression("right(?, length(?)) = ?", left, right, right), nil
	case OpRegex:
		return exp.NewLiteralExpression("? ~ ?", left, right), nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %q", ErrNotSQLRepresentable, e.Op)
}

func operandToSQL(v Value, columns FieldColumnMapping) (any, error) {
	switch v.Kind {
	case ValueField:
		col, ok := columns[v.Str]
		if !ok {
			return nil, fmt.Errorf("%w: no column mapped for field %q", ErrNotSQLRepresentable, v.Str)
		}
		return goqu.I(col), nil
	case ValueString, ValueHex, ValueTime:
		return goqu.V(v.Str), nil
	case ValueNumber:
		return goqu.V(v.Num), nil
	case ValueBool:
		return goqu.V(v.Bool), nil
	case ValueDateTime:
		t, err := time.Parse(time.RFC3339Nano, v.Str)
		if err != nil {
			return nil, err
		}
		return goqu.V(t.UTC()), nil
	case ValueAttr:
		return nil, fmt.Errorf("%w: attribute operand %s", ErrNotSQLRepresentable, v.Attribute)
	}
	if v.Inner == nil {
		return nil, fmt.Errorf("%w: %s without nested value", ErrMalformedExpression, v.Kind)
	}
	inner, err := operandToSQL(*v.Inner, columns)
	if err != nil {
		return nil, err
	}
	if typ, ok := sqlCastTypes[v.Kind]; ok {
		return goqu.L("CAST(? AS "+typ+")", inner), nil
	}
	if part, ok := sqlDateParts[v.Kind]; ok {
		return goqu.L("EXTRACT("+part+" FROM ?)", inner), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotSQLRepresentable, v.Kind)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
