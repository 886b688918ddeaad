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
	"slices"
	"strings"
)

// RuleID identifies a stored rule. It is not part of the rule JSON. Rules of
// an access rule model get a content-derived ID on materialization; the rule
// store assigns one to any other rule without ID.
type RuleID string

// Rule is a single access permission rule.
//
// JSON form:
//
//	{
//	  "ACL": {"ATTRIBUTES": [...], "RIGHTS": ["READ"], "ACCESS": "ALLOW"},
//	  "OBJECTS": [{"ROUTE": "/shells/*"}],
//	  "FORMULA": {"$eq": [{"$attribute": {"CLAIM": "role"}}, {"$strVal": "admin"}]},
//	  "FILTER": {"FRAGMENT": "$aasdesc#specificAssetIds[]", "CONDITION": {...}}
//	}
//
// Top-level keys other than ACL, OBJECTS, FORMULA and FILTER are kept in Extra
// and written back on serialization.
type Rule struct {
	ID         RuleID
	Attributes []AttributeBinding
	Rights     []Right
	Access     AccessDecision
	Objects    []ObjectPattern
	Formula    Expression
	Filter     *RuleFilter
	Extra      map[string]any
}

// RuleFilter narrows the data a permitted subject sees. Fragment optionally
// names the part of the target the condition applies to.
type RuleFilter struct {
	Fragment  string     `json:"FRAGMENT,omitempty"`
	Condition Expression `json:"CONDITION"`
}

// Clone returns a copy of r that shares no mutable state with it.
func (r Rule) Clone() Rule {
	out := r
	out.Attributes = slices.Clone(r.Attributes)
	out.Rights = slices.Clone(r.Rights)
	out.Objects = slices.Clone(r.Objects)
	out.Formula = r.Formula.Clone()
	if r.Filter != nil {
		f := *r.Filter
		f.Condition = r.Filter.Condition.Clone()
		out.Filter = &f
	}
	if r.Extra != nil {
		out.Extra = cloneJSON(r.Extra).(map[string]any)
	}
	return out
}

// cloneJSON copies decoded JSON values; scalars are returned as is.
func cloneJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneJSON(e)
		}
		return out
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneJSON(e)
		}
		return out
	}
	return v
}

// IsPermit reports whether the rule grants access.
func (r Rule) IsPermit() bool { return r.Access == AccessPermit }

// IsDeny reports whether the rule denies access.
func (r Rule) IsDeny() bool { return r.Access == AccessDeny }

// Validate rejects rules that can never be evaluated sensibly: missing or
// unknown rights, an unknown ACCESS value, a missing FORMULA or any malformed
// expression, attribute or object.
func (r Rule) Validate() error {
	if len(r.Rights) == 0 {
		return fmt.Errorf("RIGHTS must not be empty")
	}
	for _, right := range r.Rights {
		if _, ok := knownRights[right]; !ok {
			return fmt.Errorf("invalid right %q", right)
		}
	}
	if r.Access != AccessPermit && r.Access != AccessDeny {
		return fmt.Errorf("ACCESS must be ALLOW or DISABLED, got %q", r.Access)
	}
	for i, a := range r.Attributes {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("ATTRIBUTES[%d]: %w", i, err)
		}
	}
	for i, o := range r.Objects {
		if o.IsEmpty() {
			return fmt.Errorf("OBJECTS[%d]: empty object pattern", i)
		}
	}
	if r.Formula.IsZero() {
		return fmt.Errorf("FORMULA is required")
	}
	if err := r.Formula.Validate(); err != nil {
		return fmt.Errorf("FORMULA: %w", err)
	}
	if r.Filter != nil {
		if r.Filter.Condition.IsZero() {
			return fmt.Errorf("FILTER: CONDITION is required")
		}
		if err := r.Filter.Condition.Validate(); err != nil {
			return fmt.Errorf("FILTER: %w", err)
		}
	}
	return nil
}

// ValidateStrict applies Validate and additionally requires a non-empty
// OBJECTS list, as the rule administration API does.
func (r Rule) ValidateStrict() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(r.Objects) == 0 {
		return fmt.Errorf("OBJECTS must not be empty")
	}
	return nil
}

type aclJSON struct {
	Attributes []AttributeBinding `json:"ATTRIBUTES,omitempty"`
	Rights     []Right            `json:"RIGHTS"`
	Access     AccessDecision     `json:"ACCESS"`
}

var ruleKeys = map[string]struct{}{"ACL": {}, "OBJECTS": {}, "FORMULA": {}, "FILTER": {}}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4+len(r.Extra))
	for k, v := range r.Extra {
		if _, known := ruleKeys[k]; !known {
			out[k] = v
		}
	}
	out["ACL"] = aclJSON{Attributes: r.Attributes, Rights: r.Rights, Access: r.Access}
	if len(r.Objects) > 0 {
		out["OBJECTS"] = r.Objects
	}
	if !r.Formula.IsZero() {
		out["FORMULA"] = r.Formula
	}
	if r.Filter != nil {
		out["FILTER"] = r.Filter
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. The rule is decoded but not
// validated; callers run Validate before accepting it.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var raw map[string]rawJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Rule
	if body, ok := raw["ACL"]; ok {
		var acl aclJSON
		if err := strictDecode(body, &acl); err != nil {
			return fmt.Errorf("ACL: %w", err)
		}
		out.Attributes = acl.Attributes
		out.Rights = acl.Rights
		out.Access = acl.Access
	} else {
		return fmt.Errorf("ACL is required")
	}
	if body, ok := raw["OBJECTS"]; ok {
		if err := json.Unmarshal(body, &out.Objects); err != nil {
			return fmt.Errorf("OBJECTS: %w", err)
		}
	}
	if body, ok := raw["FORMULA"]; ok {
		if err := json.Unmarshal(body, &out.Formula); err != nil {
			return fmt.Errorf("FORMULA: %w", err)
		}
	}
	if body, ok := raw["FILTER"]; ok {
		var f RuleFilter
		if err := strictDecode(body, &f); err != nil {
			return fmt.Errorf("FILTER: %w", err)
		}
		out.Filter = &f
	}
	for k, body := range raw {
		if _, known := ruleKeys[k]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	*r = out
	return nil
}

// ParseRule decodes and validates a single rule.
func ParseRule(data []byte) (Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return Rule{}, err
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func strictDecode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// FragmentMatches reports whether the filter applies to the requested
// fragment. A filter without FRAGMENT applies everywhere; a trailing "[]"
// in the filter's fragment matches any index.
func (f *RuleFilter) FragmentMatches(fragment string) bool {
	if f == nil || f.Fragment == "" || fragment == "" {
		return true
	}
	if f.Fragment == fragment {
		return true
	}
	if strings.Contains(f.Fragment, "[]") {
		return stripIndices(fragment) == f.Fragment
	}
	return false
}

// stripIndices turns "$aasdesc#endpoints[2]" into "$aasdesc#endpoints[]".
func stripIndices(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			b.WriteByte(s[i])
			continue
		}
		j := strings.IndexByte(s[i:], ']')
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString("[]")
		i += j
	}
	return b.String()
}
