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
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/access_rule_model.schema.json
var accessRuleModelSchema []byte

// AccessRuleModel is the document form of a rule set. Definitions declared in
// the DEF* sections can be referenced from rules through the USE* keys.
type AccessRuleModel struct {
	AllAccessPermissionRules AllAccessPermissionRules `json:"AllAccessPermissionRules"`
}

// AllAccessPermissionRules holds the reusable definitions and the rules.
type AllAccessPermissionRules struct {
	DefAttributes []AttributeDefinition `json:"DEFATTRIBUTES,omitempty"`
	DefACLs       []ACLDefinition       `json:"DEFACLS,omitempty"`
	DefObjects    []ObjectDefinition    `json:"DEFOBJECTS,omitempty"`
	DefFormulas   []FormulaDefinition   `json:"DEFFORMULAS,omitempty"`
	Rules         []ModelRule           `json:"rules"`
}

// AttributeDefinition names a reusable attribute list.
type AttributeDefinition struct {
	Name       string             `json:"name"`
	Attributes []AttributeBinding `json:"attributes"`
}

// ACLDefinition names a reusable ACL.
type ACLDefinition struct {
	Name string   `json:"name"`
	ACL  ModelACL `json:"acl"`
}

// ObjectDefinition names a reusable object list which may include other
// object definitions.
type ObjectDefinition struct {
	Name       string          `json:"name"`
	Objects    []ObjectPattern `json:"objects,omitempty"`
	UseObjects []string        `json:"USEOBJECTS,omitempty"`
}

// FormulaDefinition names a reusable formula.
type FormulaDefinition struct {
	Name    string     `json:"name"`
	Formula Expression `json:"formula"`
}

// ModelACL is an ACL whose attributes may come from a DEFATTRIBUTES entry.
type ModelACL struct {
	Attributes    []AttributeBinding `json:"ATTRIBUTES,omitempty"`
	UseAttributes string             `json:"USEATTRIBUTES,omitempty"`
	Rights        []Right            `json:"RIGHTS"`
	Access        AccessDecision     `json:"ACCESS"`
}

// ModelRule is a rule as written in a model document, before references are
// resolved.
type ModelRule struct {
	ACL        *ModelACL       `json:"ACL,omitempty"`
	UseACL     string          `json:"USEACL,omitempty"`
	Objects    []ObjectPattern `json:"OBJECTS,omitempty"`
	UseObjects []string        `json:"USEOBJECTS,omitempty"`
	Formula    *Expression     `json:"FORMULA,omitempty"`
	UseFormula string          `json:"USEFORMULA,omitempty"`
	Filter     *ModelFilter    `json:"FILTER,omitempty"`
}

// ModelFilter is a FILTER whose condition may come from a DEFFORMULAS entry.
type ModelFilter struct {
	Fragment   string      `json:"FRAGMENT,omitempty"`
	Condition  *Expression `json:"CONDITION,omitempty"`
	UseFormula string      `json:"USEFORMULA,omitempty"`
}

// ErrSchemaViolation is returned when a model document does not satisfy the
// access rule model schema.
var ErrSchemaViolation = errors.New("access rule model violates schema")

// ParseAccessRuleModel decodes a model document. YAML input is converted to
// JSON first. The document is checked against the embedded schema and then
// decoded strictly.
func ParseAccessRuleModel(data []byte) (*AccessRuleModel, error) {
	doc, err := toJSONDocument(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateAccessRuleModelSchema(doc); err != nil {
		return nil, err
	}
	var m AccessRuleModel
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode access rule model: %w", err)
	}
	return &m, nil
}

// ValidateAccessRuleModelSchema checks a JSON document against the access rule
// model schema.
func ValidateAccessRuleModelSchema(doc []byte) error {
	schema, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewBytesLoader(accessRuleModelSchema))
	if err != nil {
		return fmt.Errorf("compile access rule model schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}
	return nil
}

func toJSONDocument(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("access rule model is empty")
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}
	var doc any
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode access rule model yaml: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert access rule model yaml: %w", err)
	}
	return out, nil
}

type definitionIndex struct {
	acls     map[string]ModelACL
	attrs    map[string][]AttributeBinding
	formulas map[string]Expression
	objects  map[string]ObjectDefinition
}

// Materialize resolves every USE* reference and returns self-contained,
// validated rules in document order.
func (m *AccessRuleModel) Materialize() ([]Rule, error) {
	all := m.AllAccessPermissionRules
	index, err := buildDefinitionIndex(all)
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(all.Rules))
	for i, mr := range all.Rules {
		r, err := index.materialize(mr)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, r)
	}
	if err := assignContentIDs(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ruleIDNamespace scopes the name-based UUIDs of model rules.
var ruleIDNamespace = uuid.MustParse("3f1c2a9e-6d4b-5e8f-9a7c-0b1d2e3f4a5b")

// assignContentIDs gives every rule without an ID a UUID derived from its
// JSON, so rules read from the same document keep their IDs across reloads.
// The n-th repetition of an identical rule is told apart by its count.
func assignContentIDs(rules []Rule) error {
	seen := make(map[string]int, len(rules))
	for i := range rules {
		if rules[i].ID != "" {
			continue
		}
		raw, err := json.Marshal(rules[i])
		if err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
		name := string(raw)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
		rules[i].ID = RuleID(uuid.NewSHA1(ruleIDNamespace, []byte(name)).String())
	}
	return nil
}

func definitionName(section, name string) (string, error) {
	out := strings.TrimSpace(name)
	if out == "" {
		return "", fmt.Errorf("%s: definition name must not be empty", section)
	}
	return out, nil
}

func buildDefinitionIndex(all AllAccessPermissionRules) (definitionIndex, error) {
	index := definitionIndex{
		acls:     make(map[string]ModelACL),
		attrs:    make(map[string][]AttributeBinding),
		formulas: make(map[string]Expression),
		objects:  make(map[string]ObjectDefinition),
	}
	for _, d := range all.DefACLs {
		name, err := definitionName("DEFACLS", d.Name)
		if err != nil {
			return index, err
		}
		if _, exists := index.acls[name]; exists {
			return index, fmt.Errorf("DEFACLS: duplicate name %q", name)
		}
		index.acls[name] = d.ACL
	}
	for _, d := range all.DefAttributes {
		name, err := definitionName("DEFATTRIBUTES", d.Name)
		if err != nil {
			return index, err
		}
		if _, exists := index.attrs[name]; exists {
			return index, fmt.Errorf("DEFATTRIBUTES: duplicate name %q", name)
		}
		index.attrs[name] = d.Attributes
	}
	for _, d := range all.DefFormulas {
		name, err := definitionName("DEFFORMULAS", d.Name)
		if err != nil {
			return index, err
		}
		if _, exists := index.formulas[name]; exists {
			return index, fmt.Errorf("DEFFORMULAS: duplicate name %q", name)
		}
		index.formulas[name] = d.Formula
	}
	for _, d := range all.DefObjects {
		name, err := definitionName("DEFOBJECTS", d.Name)
		if err != nil {
			return index, err
		}
		if _, exists := index.objects[name]; exists {
			return index, fmt.Errorf("DEFOBJECTS: duplicate name %q", name)
		}
		index.objects[name] = d
	}
	return index, nil
}

func (ix definitionIndex) materialize(mr ModelRule) (Rule, error) {
	var out Rule

	var acl ModelACL
	switch {
	case mr.ACL != nil && mr.UseACL != "":
		return out, fmt.Errorf("only one of ACL or USEACL may be defined")
	case mr.ACL != nil:
		acl = *mr.ACL
	case mr.UseACL != "":
		name := strings.TrimSpace(mr.UseACL)
		found, ok := ix.acls[name]
		if !ok {
			return out, fmt.Errorf("USEACL %q not found", name)
		}
		acl = found
	default:
		return out, fmt.Errorf("ACL is required")
	}
	out.Rights = append([]Right(nil), acl.Rights...)
	out.Access = acl.Access
	out.Attributes = append(out.Attributes, acl.Attributes...)
	if acl.UseAttributes != "" {
		name := strings.TrimSpace(acl.UseAttributes)
		attrs, ok := ix.attrs[name]
		if !ok {
			return out, fmt.Errorf("USEATTRIBUTES %q not found", name)
		}
		out.Attributes = append(out.Attributes, attrs...)
	}

	out.Objects = append(out.Objects, mr.Objects...)
	if len(mr.UseObjects) > 0 {
		resolved, err := ix.resolveObjects(mr.UseObjects, map[string]bool{})
		if err != nil {
			return out, err
		}
		out.Objects = append(out.Objects, resolved...)
	}

	switch {
	case mr.Formula != nil && mr.UseFormula != "":
		return out, fmt.Errorf("only one of FORMULA or USEFORMULA may be defined")
	case mr.Formula != nil:
		out.Formula = *mr.Formula
	case mr.UseFormula != "":
		name := strings.TrimSpace(mr.UseFormula)
		f, ok := ix.formulas[name]
		if !ok {
			return out, fmt.Errorf("USEFORMULA %q not found", name)
		}
		out.Formula = f
	default:
		return out, fmt.Errorf("FORMULA is required")
	}

	if mr.Filter != nil {
		f := RuleFilter{Fragment: mr.Filter.Fragment}
		useFormula := strings.TrimSpace(mr.Filter.UseFormula)
		switch {
		case mr.Filter.Condition != nil && useFormula != "":
			return out, fmt.Errorf("FILTER: only one of CONDITION or USEFORMULA may be defined")
		case mr.Filter.Condition != nil:
			f.Condition = *mr.Filter.Condition
		case useFormula != "":
			cond, ok := ix.formulas[useFormula]
			if !ok {
				return out, fmt.Errorf("FILTER: USEFORMULA %q not found", useFormula)
			}
			f.Condition = cond
		default:
			return out, fmt.Errorf("FILTER: CONDITION or USEFORMULA is required")
		}
		out.Filter = &f
	}
	return out, nil
}

func (ix definitionIndex) resolveObjects(names []string, seen map[string]bool) ([]ObjectPattern, error) {
	var out []ObjectPattern
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("USEOBJECTS reference must not be empty")
		}
		if seen[name] {
			return nil, fmt.Errorf("circular USEOBJECTS reference involving %q", name)
		}
		def, ok := ix.objects[name]
		if !ok {
			return nil, fmt.Errorf("USEOBJECTS %q not found", name)
		}
		out = append(out, def.Objects...)
		if len(def.UseObjects) > 0 {
			seen[name] = true
			nested, err := ix.resolveObjects(def.UseObjects, seen)
			delete(seen, name)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

// Dematerialize wraps resolved rules into a model document without
// definitions, the form used when exporting a stored rule set.
func Dematerialize(rules []Rule) *AccessRuleModel {
	out := &AccessRuleModel{}
	out.AllAccessPermissionRules.Rules = make([]ModelRule, 0, len(rules))
	for _, r := range rules {
		formula := r.Formula
		mr := ModelRule{
			ACL:     &ModelACL{Attributes: r.Attributes, Rights: r.Rights, Access: r.Access},
			Objects: r.Objects,
			Formula: &formula,
		}
		if r.Filter != nil {
			cond := r.Filter.Condition
			mr.Filter = &ModelFilter{Fragment: r.Filter.Fragment, Condition: &cond}
		}
		out.AllAccessPermissionRules.Rules = append(out.AllAccessPermissionRules.Rules, mr)
	}
	return out
}
