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
	"strings"
)

// AttributeSource names where an attribute value comes from.
type AttributeSource string

// Attribute sources.
const (
	SourceClaim     AttributeSource = "CLAIM"
	SourceGlobal    AttributeSource = "GLOBAL"
	SourceReference AttributeSource = "REFERENCE"
)

// GlobalKind enumerates the values a GLOBAL attribute can take.
type GlobalKind string

// Global attribute kinds.
const (
	GlobalLocalNow  GlobalKind = "LOCALNOW"
	GlobalUTCNow    GlobalKind = "UTCNOW"
	GlobalClientNow GlobalKind = "CLIENTNOW"
	GlobalAnonymous GlobalKind = "ANONYMOUS"
)

// AttributeBinding is a named slot resolved at evaluation time.
//
// Exactly one source is set per binding:
//   - {"CLAIM": "role"} looks up a subject claim
//   - {"GLOBAL": "UTCNOW"} yields a value computed by the engine
//   - {"REFERENCE": "$sm#idShort"} points into the evaluated target
type AttributeBinding struct {
	Source AttributeSource
	Name   string
}

// Claim returns a binding to the subject claim name.
func Claim(name string) AttributeBinding {
	return AttributeBinding{Source: SourceClaim, Name: name}
}

// Global returns a binding to an engine computed value.
func Global(kind GlobalKind) AttributeBinding {
	return AttributeBinding{Source: SourceGlobal, Name: string(kind)}
}

// Reference returns a binding to a field of the evaluated target.
func Reference(path string) AttributeBinding {
	return AttributeBinding{Source: SourceReference, Name: path}
}

// GlobalKind returns the kind of a GLOBAL binding.
func (a AttributeBinding) GlobalKind() GlobalKind {
	return GlobalKind(a.Name)
}

// IsTimeGlobal reports whether a is one of the clock based GLOBAL attributes.
func (a AttributeBinding) IsTimeGlobal() bool {
	if a.Source != SourceGlobal {
		return false
	}
	switch a.GlobalKind() {
	case GlobalLocalNow, GlobalUTCNow, GlobalClientNow:
		return true
	}
	return false
}

func (a AttributeBinding) String() string {
	return string(a.Source) + "(" + a.Name + ")"
}

// Validate checks that the binding names a known source and a usable value.
func (a AttributeBinding) Validate() error {
	switch a.Source {
	case SourceClaim, SourceReference:
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("attribute %s: value must not be empty", a.Source)
		}
	case SourceGlobal:
		switch a.GlobalKind() {
		case GlobalLocalNow, GlobalUTCNow, GlobalClientNow, GlobalAnonymous:
		default:
			return fmt.Errorf("attribute GLOBAL must be one of LOCALNOW, UTCNOW, CLIENTNOW, ANONYMOUS (got %q)", a.Name)
		}
	default:
		return fmt.Errorf("attribute: invalid source %q (allowed: CLAIM, GLOBAL, REFERENCE)", a.Source)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a AttributeBinding) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(a.Source): a.Name})
}

// UnmarshalJSON implements json.Unmarshaler. The object must carry exactly one
// of CLAIM, GLOBAL or REFERENCE with a string value.
func (a *AttributeBinding) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("attribute: expected exactly one key, got %d", len(raw))
	}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("attribute: value for %q must be a string", k)
		}
		binding := AttributeBinding{Source: AttributeSource(k), Name: s}
		if err := binding.Validate(); err != nil {
			return err
		}
		*a = binding
	}
	return nil
}
