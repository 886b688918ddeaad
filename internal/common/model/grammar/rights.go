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

// Package grammar defines the Access Rule Model: rules, attribute bindings, object patterns and the
// logical expression language used in FORMULA and FILTER conditions.
package grammar

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type rawJSON = jsoniter.RawMessage

// Right is an operation class a rule grants or denies.
type Right string

// Rights known to the Access Rule Model.
const (
	RightCreate  Right = "CREATE"
	RightRead    Right = "READ"
	RightUpdate  Right = "UPDATE"
	RightDelete  Right = "DELETE"
	RightExecute Right = "EXECUTE"
	RightView    Right = "VIEW"
	RightAll     Right = "ALL"
	RightTree    Right = "TREE"
)

var knownRights = map[Right]struct{}{
	RightCreate:  {},
	RightRead:    {},
	RightUpdate:  {},
	RightDelete:  {},
	RightExecute: {},
	RightView:    {},
	RightAll:     {},
	RightTree:    {},
}

// ParseRight converts s (case-insensitive) into a Right.
func ParseRight(s string) (Right, error) {
	r := Right(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownRights[r]; !ok {
		return "", fmt.Errorf("invalid right %q (expected one of CREATE, READ, UPDATE, DELETE, EXECUTE, VIEW, ALL, TREE)", s)
	}
	return r, nil
}

// Covers reports whether a rule granting r applies to a request for requested.
// ALL covers every right.
func (r Right) Covers(requested Right) bool {
	return r == RightAll || r == requested
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Right) UnmarshalJSON(value []byte) error {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	if _, ok := knownRights[Right(s)]; !ok {
		return fmt.Errorf("invalid value for RIGHTS: %q", s)
	}
	*r = Right(s)
	return nil
}

// RightsCover reports whether any right in rights covers requested.
func RightsCover(rights []Right, requested Right) bool {
	for _, r := range rights {
		if r.Covers(requested) {
			return true
		}
	}
	return false
}

// AccessDecision is the effect of a rule. The wire values are ALLOW and DISABLED.
type AccessDecision string

// Rule effects.
const (
	AccessPermit AccessDecision = "ALLOW"
	AccessDeny   AccessDecision = "DISABLED"
)

// UnmarshalJSON implements json.Unmarshaler.
func (a *AccessDecision) UnmarshalJSON(value []byte) error {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	switch AccessDecision(s) {
	case AccessPermit, AccessDeny:
		*a = AccessDecision(s)
		return nil
	default:
		return fmt.Errorf("invalid value for ACCESS (expected ALLOW or DISABLED): %q", s)
	}
}
