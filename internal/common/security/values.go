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
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType tags a runtime value produced by the resolver or a literal.
type ValueType uint8

// Runtime value types. TypeNone is "no value": every comparison against it
// is false.
const (
	TypeNone ValueType = iota
	TypeString
	TypeNumber
	TypeHex
	TypeDateTime
	TypeTime
	TypeBool
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeHex:
		return "hex"
	case TypeDateTime:
		return "dateTime"
	case TypeTime:
		return "time"
	case TypeBool:
		return "boolean"
	}
	return "none"
}

// Value is a typed runtime value. Seconds holds the time-of-day of TypeTime
// values.
type Value struct {
	Type     ValueType
	Str      string
	Num      float64
	Hex      *big.Int
	DateTime time.Time
	Seconds  int
	Bool     bool
}

var noValue = Value{}

func stringValue(s string) Value { return Value{Type: TypeString, Str: s} }
func numberValue(n float64) Value { return Value{Type: TypeNumber, Num: n} }
func hexValue(h *big.Int) Value { return Value{Type: TypeHex, Hex: h} }
func dateTimeValue(t time.Time) Value { return Value{Type: TypeDateTime, DateTime: t} }
func timeOfDayValue(seconds int) Value { return Value{Type: TypeTime, Seconds: seconds} }
func boolValue(b bool) Value { return Value{Type: TypeBool, Bool: b} }
func (v Value) IsNone() bool { return v.Type == TypeNone }
func (v Value) isNumeric() bool { return v.Type == TypeNumber || v.Type == TypeHex }

// String renders the value the way $strCast does.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case TypeHex:
		return "16#" + strings.ToUpper(v.Hex.Text(16))
	case TypeDateTime:
		return v.DateTime.Format(time.RFC3339Nano)
	case TypeTime:
		return fmt.Sprintf("%02d:%02d:%02d", v.Seconds/3600, (v.Seconds/60)%60, v.Seconds%60)
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// valueFromAny converts a claim or target field into a runtime value.
// Single-element arrays are unwrapped; empty and multi-element arrays have
// no value.
func valueFromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return noValue
	case Value:
		return x
	case string:
		return stringValue(x)
	case bool:
		return boolValue(x)
	case float64:
		return numberValue(x)
	case float32:
		return numberValue(float64(x))
	case int:
		return numberValue(float64(x))
	case int32:
		return numberValue(float64(x))
	case int64:
		return numberValue(float64(x))
	case uint:
		return numberValue(float64(x))
	case uint32:
		return numberValue(float64(x))
	case uint64:
		return numberValue(float64(x))
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		if err != nil {
			return noValue
		}
		return numberValue(f)
	case time.Time:
		return dateTimeValue(x)
	case *time.Time:
		if x == nil {
			return noValue
		}
		return dateTimeValue(*x)
	case []any:
		if len(x) != 1 {
			return noValue
		}
		return valueFromAny(x[0])
	case []string:
		if len(x) != 1 {
			return noValue
		}
		return stringValue(x[0])
	case fmt.Stringer:
		return stringValue(x.String())
	}
	return stringValue(fmt.Sprint(raw))
}

var hexStringPattern = regexp.MustCompile(`(?i)^16#[0-9a-f]+$`)

func parseHex(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if !hexStringPattern.MatchString(s) {
		return nil, false
	}
	h, ok := new(big.Int).SetString(s[3:], 16)
	return h, ok
}

func parseTimeOfDay(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	fields := [3]int{}
	for i, p := range parts {
		if len(p) != 2 {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if h > 23 || m > 59 || sec > 59 {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

func parseDateTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func castToString(v Value) Value {
	if v.IsNone() {
		return noValue
	}
	return stringValue(v.String())
}

func castToNumber(v Value) Value {
	switch v.Type {
	case TypeNumber:
		return v
	case TypeHex:
		f, _ := new(big.Float).SetInt(v.Hex).Float64()
		return numberValue(f)
	case TypeString:
		if h, ok := parseHex(v.Str); ok {
			return castToNumber(hexValue(h))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return noValue
		}
		return numberValue(f)
	}
	return noValue
}

func castToHex(v Value) Value {
	switch v.Type {
	case TypeHex:
		return v
	case TypeNumber:
		if v.Num < 0 || v.Num != math.Trunc(v.Num) || math.IsInf(v.Num, 0) {
			return noValue
		}
		h, _ := big.NewFloat(v.Num).Int(nil)
		return hexValue(h)
	case TypeString:
		if h, ok := parseHex(v.Str); ok {
			return hexValue(h)
		}
	}
	return noValue
}

func castToBool(v Value) Value {
	switch v.Type {
	case TypeBool:
		return v
	case TypeNumber:
		switch v.Num {
		case 1:
			return boolValue(true)
		case 0:
			return boolValue(false)
		}
	case TypeString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "1", "yes":
			return boolValue(true)
		case "false", "0", "no":
			return boolValue(false)
		}
	}
	return noValue
}

func castToDateTime(v Value) Value {
	switch v.Type {
	case TypeDateTime:
		return v
	case TypeString:
		if t, ok := parseDateTime(v.Str); ok {
			return dateTimeValue(t)
		}
	}
	return noValue
}

func castToTime(v Value) Value {
	switch v.Type {
	case TypeTime:
		return v
	case TypeDateTime:
		return timeOfDayValue(secondsOfDay(v.DateTime))
	case TypeString:
		if s, ok := parseTimeOfDay(v.Str); ok {
			return timeOfDayValue(s)
		}
		if t, ok := parseDateTime(v.Str); ok {
			return timeOfDayValue(secondsOfDay(t))
		}
	}
	return noValue
}

// dateOf returns the instant a date-part operand reads from.
func dateOf(v Value) (time.Time, bool) {
	switch v.Type {
	case TypeDateTime:
		return v.DateTime, true
	case TypeString:
		return parseDateTime(v.Str)
	}
	return time.Time{}, false
}

// compareNumeric orders two numeric values. Hex pairs compare exactly.
func compareNumeric(a, b Value) int {
	if a.Type == TypeHex && b.Type == TypeHex {
		return a.Hex.Cmp(b.Hex)
	}
	af, bf := castToNumber(a).Num, castToNumber(b).Num
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// orderValues compares two values of an ordered type. ok is false for
// unordered or mixed pairs and for missing values.
func orderValues(a, b Value) (cmp int, ok bool) {
	switch {
	case a.isNumeric() && b.isNumeric():
		return compareNumeric(a, b), true
	case a.Type == TypeDateTime && b.Type == TypeDateTime:
		return a.DateTime.Compare(b.DateTime), true
	case a.Type == TypeTime && b.Type == TypeTime:
		switch {
		case a.Seconds < b.Seconds:
			return -1, true
		case a.Seconds > b.Seconds:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// equalValues reports type-aware equality. ok is false when the pair cannot
// be compared, which makes both $eq and $ne false.
func equalValues(a, b Value) (equal bool, ok bool) {
	if cmp, ordered := orderValues(a, b); ordered {
		return cmp == 0, true
	}
	switch {
	case a.Type == TypeBool && b.Type == TypeBool:
		return a.Bool == b.Bool, true
	case a.Type == TypeString && b.Type == TypeString:
		return a.Str == b.Str, true
	}
	return false, false
}
