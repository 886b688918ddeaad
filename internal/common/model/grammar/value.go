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
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value. The constants equal the JSON keys.
type ValueKind string

// Literal, reference, cast and date-part operand kinds.
const (
	ValueString   ValueKind = "$strVal"
	ValueNumber   ValueKind = "$numVal"
	ValueHex      ValueKind = "$hexVal"
	ValueDateTime ValueKind = "$dateTimeVal"
	ValueTime     ValueKind = "$timeVal"
	ValueBool     ValueKind = "$boolean"
	ValueAttr     ValueKind = "$attribute"
	ValueField    ValueKind = "$field"

	CastString   ValueKind = "$strCast"
	CastNumber   ValueKind = "$numCast"
	CastHex      ValueKind = "$hexCast"
	CastBool     ValueKind = "$boolCast"
	CastDateTime ValueKind = "$dateTimeCast"
	CastTime     ValueKind = "$timeCast"

	PartYear       ValueKind = "$year"
	PartMonth      ValueKind = "$month"
	PartDayOfMonth ValueKind = "$dayOfMonth"
	PartDayOfWeek  ValueKind = "$dayOfWeek"
)

var (
	hexLiteralPattern  = regexp.MustCompile(`^16#[0-9A-F]+$`)
	timeLiteralPattern = regexp.MustCompile(`^[0-9][0-9]:[0-9][0-9](:[0-9][0-9])?$`)
)

// Value is a comparison operand: a literal, an attribute binding, a target
// field reference, or a cast / date-part wrapper around a nested Value.
//
// Str carries the text of string, hex, date-time and time literals and the
// path of a field reference. Date-time literals are kept in their RFC 3339
// text form and parsed on evaluation.
type Value struct {
	Kind      ValueKind
	Str       string
	Num       float64
	Bool      bool
	Attribute *AttributeBinding
	Inner     *Value
}

// StrVal returns a string literal.
func StrVal(s string) Value { return Value{Kind: ValueString, Str: s} }

// NumVal returns a numeric literal.
func NumVal(n float64) Value { return Value{Kind: ValueNumber, Num: n} }

// HexVal returns a hex literal such as "16#FF".
func HexVal(s string) Value { return Value{Kind: ValueHex, Str: s} }

// DateTimeVal returns a date-time literal.
func DateTimeVal(t time.Time) Value {
	return Value{Kind: ValueDateTime, Str: t.Format(time.RFC3339Nano)}
}

// TimeVal returns a time-of-day literal in HH:MM or HH:MM:SS form.
func TimeVal(s string) Value { return Value{Kind: ValueTime, Str: s} }

// BoolVal returns a boolean literal.
func BoolVal(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// Attr returns an operand resolved from an attribute binding.
func Attr(b AttributeBinding) Value { return Value{Kind: ValueAttr, Attribute: &b} }

// Field returns an operand referencing a target-addressable field.
func Field(path string) Value { return Value{Kind: ValueField, Str: path} }

// Wrap returns a cast or date-part operand around inner.
func Wrap(kind ValueKind, inner Value) Value { return Value{Kind: kind, Inner: &inner} }

// Clone returns a copy of v with its own Attribute and Inner.
func (v Value) Clone() Value {
	out := v
	if v.Attribute != nil {
		a := *v.Attribute
		out.Attribute = &a
	}
	if v.Inner != nil {
		inner := v.Inner.Clone()
		out.Inner = &inner
	}
	return out
}

// IsCast reports whether v is one of the cast wrappers.
func (v Value) IsCast() bool {
	switch v.Kind {
	case CastString, CastNumber, CastHex, CastBool, CastDateTime, CastTime:
		return true
	}
	return false
}

// IsDatePart reports whether v extracts a component of a date-time.
func (v Value) IsDatePart() bool {
	switch v.Kind {
	case PartYear, PartMonth, PartDayOfMonth, PartDayOfWeek:
		return true
	}
	return false
}

// IsLiteral reports whether v is a literal that needs no resolution.
func (v Value) IsLiteral() bool {
	switch v.Kind {
	case ValueString, ValueNumber, ValueHex, ValueDateTime, ValueTime, ValueBool:
		return true
	}
	return false
}

// Walk calls fn for v and every nested operand.
func (v Value) Walk(fn func(Value)) {
	fn(v)
	if v.Inner != nil {
		v.Inner.Walk(fn)
	}
}

// Validate checks literal formats and wrapper nesting.
func (v Value) Validate() error {
	switch v.Kind {
	case ValueString:
		if len(v.Str) > 0 && v.Str[0] == '$' {
			return fmt.Errorf("$strVal must not start with '$': %q", v.Str)
		}
	case ValueNumber, ValueBool:
	case ValueHex:
		if !hexLiteralPattern.MatchString(v.Str) {
			return fmt.Errorf("$hexVal must match %s: %q", hexLiteralPattern, v.Str)
		}
	case ValueDateTime:
		if _, err := time.Parse(time.RFC3339Nano, v.Str); err != nil {
			return fmt.Errorf("$dateTimeVal: %w", err)
		}
	case ValueTime:
		if !timeLiteralPattern.MatchString(v.Str) {
			return fmt.Errorf("$timeVal must match %s: %q", timeLiteralPattern, v.Str)
		}
	case ValueAttr:
		if v.Attribute == nil {
			return fmt.Errorf("$attribute: binding is missing")
		}
		return v.Attribute.Validate()
	case ValueField:
		if v.Str == "" {
			return fmt.Errorf("$field must not be empty")
		}
	default:
		if !v.IsCast() && !v.IsDatePart() {
			return fmt.Errorf("unknown value kind %q", v.Kind)
		}
		if v.Inner == nil {
			return fmt.Errorf("%s: nested value is missing", v.Kind)
		}
		return v.Inner.Validate()
	}
	return nil
}

// String renders v for logs and error messages.
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueHex, ValueDateTime, ValueTime, ValueField:
		return v.Str
	case ValueAttr:
		if v.Attribute == nil {
			return "ATTRIBUTE(?)"
		}
		return v.Attribute.String()
	}
	if v.Inner != nil {
		return string(v.Kind) + "(" + v.Inner.String() + ")"
	}
	return string(v.Kind)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case ValueString, ValueHex, ValueDateTime, ValueTime, ValueField:
		payload = v.Str
	case ValueNumber:
		payload = v.Num
	case ValueBool:
		payload = v.Bool
	case ValueAttr:
		payload = v.Attribute
	default:
		if !v.IsCast() && !v.IsDatePart() {
			return nil, fmt.Errorf("cannot marshal value of kind %q", v.Kind)
		}
		payload = v.Inner
	}
	return json.Marshal(map[string]any{string(v.Kind): payload})
}

// UnmarshalJSON implements json.Unmarshaler. The object must carry exactly one
// value key.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw map[string]rawJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("value: expected exactly one key, got %d", len(raw))
	}
	var out Value
	for k, body := range raw {
		out.Kind = ValueKind(k)
		var err error
		switch out.Kind {
		case ValueString, ValueHex, ValueDateTime, ValueTime, ValueField:
			err = json.Unmarshal(body, &out.Str)
		case ValueNumber:
			err = json.Unmarshal(body, &out.Num)
		case ValueBool:
			err = json.Unmarshal(body, &out.Bool)
		case ValueAttr:
			var binding AttributeBinding
			err = json.Unmarshal(body, &binding)
			out.Attribute = &binding
		default:
			if !out.IsCast() && !out.IsDatePart() {
				return fmt.Errorf("value: unknown key %q", k)
			}
			var inner Value
			err = json.Unmarshal(body, &inner)
			out.Inner = &inner
		}
		if err != nil {
			return fmt.Errorf("value %s: %w", k, err)
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*v = out
	return nil
}
