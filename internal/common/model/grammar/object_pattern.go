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
	"bytes"
	"fmt"
)

// ObjectPattern restricts the targets a rule applies to. Every set field must
// match the corresponding field of the target; unset fields match anything.
//
// The usual form carries a single key, e.g. {"ROUTE": "/shells/*"} or
// {"IDENTIFIABLE": "urn:example:sm:1"}.
type ObjectPattern struct {
	Route        string `json:"ROUTE,omitempty" yaml:"ROUTE,omitempty"`
	Identifiable string `json:"IDENTIFIABLE,omitempty" yaml:"IDENTIFIABLE,omitempty"`
	Referable    string `json:"REFERABLE,omitempty" yaml:"REFERABLE,omitempty"`
	Fragment     string `json:"FRAGMENT,omitempty" yaml:"FRAGMENT,omitempty"`
	Descriptor   string `json:"DESCRIPTOR,omitempty" yaml:"DESCRIPTOR,omitempty"`
}

// IsEmpty reports whether no field of the pattern is set.
func (p ObjectPattern) IsEmpty() bool {
	return p.Route == "" && p.Identifiable == "" && p.Referable == "" && p.Fragment == "" && p.Descriptor == ""
}

// UnmarshalJSON implements json.Unmarshaler. Unknown keys are rejected and at
// least one field must be set.
func (p *ObjectPattern) UnmarshalJSON(value []byte) error {
	type plain ObjectPattern
	var out plain
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return fmt.Errorf("object: %w", err)
	}
	if ObjectPattern(out).IsEmpty() {
		return fmt.Errorf("object: one of ROUTE, IDENTIFIABLE, REFERABLE, FRAGMENT, DESCRIPTOR is required")
	}
	*p = ObjectPattern(out)
	return nil
}
