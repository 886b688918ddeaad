package grammar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modelWithDefinitions = `{
  "AllAccessPermissionRules": {
    "DEFATTRIBUTES": [
      {"name": "role", "attributes": [{"CLAIM": "role"}]}
    ],
    "DEFACLS": [
      {"name": "readers", "acl": {"USEATTRIBUTES": "role", "RIGHTS": ["READ"], "ACCESS": "ALLOW"}}
    ],
    "DEFOBJECTS": [
      {"name": "shells", "objects": [{"ROUTE": "/shells/*"}]},
      {"name": "everything", "objects": [{"ROUTE": "/submodels/*"}], "USEOBJECTS": ["shells"]}
    ],
    "DEFFORMULAS": [
      {"name": "isAdmin", "formula": {"$eq": [{"$attribute": {"CLAIM": "role"}}, {"$strVal": "admin"}]}},
      {"name": "serialOnly", "formula": {"$eq": [{"$field": "$aasdesc#specificAssetIds[].name"}, {"$strVal": "serial"}]}}
    ],
    "rules": [
      {"USEACL": "readers", "USEOBJECTS": ["everything"], "USEFORMULA": "isAdmin",
       "FILTER": {"FRAGMENT": "$aasdesc#specificAssetIds[]", "USEFORMULA": "serialOnly"}},
      {"ACL": {"RIGHTS": ["DELETE"], "ACCESS": "DISABLED"}, "OBJECTS": [{"ROUTE": "/shells/locked"}],
       "FORMULA": {"$boolean": true}}
    ]
  }
}`

func TestMaterializeResolvesDefinitions(t *testing.T) {
	model, err := ParseAccessRuleModel([]byte(modelWithDefinitions))
	require.NoError(t, err)

	rules, err := model.Materialize()
	require.NoError(t, err)
	require.Len(t, rules, 2)

	first := rules[0]
	require.Equal(t, []Right{RightRead}, first.Rights)
	require.Equal(t, AccessPermit, first.Access)
	require.Equal(t, []AttributeBinding{Claim("role")}, first.Attributes)
	require.Equal(t, []ObjectPattern{{Route: "/submodels/*"}, {Route: "/shells/*"}}, first.Objects)
	require.Equal(t, Compare(OpEq, Attr(Claim("role")), StrVal("admin")), first.Formula)
	require.NotNil(t, first.Filter)
	require.Equal(t, "$aasdesc#specificAssetIds[]", first.Filter.Fragment)
	require.Equal(t, []string{"$aasdesc#specificAssetIds[].name"}, first.Filter.Condition.Fields())

	second := rules[1]
	require.True(t, second.IsDeny())
	require.Equal(t, Bool(true), second.Formula)
}

func TestMaterializeAssignsStableIDs(t *testing.T) {
	doc := `{"AllAccessPermissionRules": {"rules": [
	  {"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "OBJECTS": [{"ROUTE": "/shells/*"}], "FORMULA": {"$boolean": true}},
	  {"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "OBJECTS": [{"ROUTE": "/shells/*"}], "FORMULA": {"$boolean": true}},
	  {"ACL": {"RIGHTS": ["DELETE"], "ACCESS": "DISABLED"}, "OBJECTS": [{"ROUTE": "/shells/*"}], "FORMULA": {"$boolean": true}}
	]}}`
	materialize := func() []Rule {
		model, err := ParseAccessRuleModel([]byte(doc))
		require.NoError(t, err)
		rules, err := model.Materialize()
		require.NoError(t, err)
		return rules
	}

	first, second := materialize(), materialize()
	require.Len(t, first, 3)
	ids := map[RuleID]struct{}{}
	for i := range first {
		require.NotEmpty(t, first[i].ID)
		require.Equal(t, first[i].ID, second[i].ID)
		ids[first[i].ID] = struct{}{}
	}
	require.Len(t, ids, 3, "identical rules still get distinct IDs")
}

func TestParseAccessRuleModelAcceptsYAML(t *testing.T) {
	doc := `
AllAccessPermissionRules:
  rules:
    - ACL:
        RIGHTS: [READ]
        ACCESS: ALLOW
      OBJECTS:
        - ROUTE: /shells/*
      FORMULA:
        $eq:
          - $attribute: {CLAIM: role}
          - $strVal: admin
`
	model, err := ParseAccessRuleModel([]byte(doc))
	require.NoError(t, err)
	rules, err := model.Materialize()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, []ObjectPattern{{Route: "/shells/*"}}, rules[0].Objects)
}

func TestParseAccessRuleModelRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"no rules":        `{"AllAccessPermissionRules": {}}`,
		"unknown section": `{"AllAccessPermissionRules": {"rules": [], "DEFTHINGS": []}}`,
		"acl and useacl": `{"AllAccessPermissionRules": {"rules": [
			{"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "USEACL": "x", "FORMULA": {"$boolean": true}}]}}`,
		"bad access": `{"AllAccessPermissionRules": {"rules": [
			{"ACL": {"RIGHTS": ["READ"], "ACCESS": "YES"}, "FORMULA": {"$boolean": true}}]}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessRuleModel([]byte(doc))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrSchemaViolation), err.Error())
		})
	}
}

func TestMaterializeReportsReferenceErrors(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want string
	}{
		"duplicate acl": {
			doc: `{"AllAccessPermissionRules": {
				"DEFACLS": [{"name": "a", "acl": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}},
				            {"name": "a", "acl": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}}],
				"rules": []}}`,
			want: `DEFACLS: duplicate name "a"`,
		},
		"missing acl reference": {
			doc: `{"AllAccessPermissionRules": {"rules": [
				{"USEACL": "nope", "FORMULA": {"$boolean": true}}]}}`,
			want: `USEACL "nope" not found`,
		},
		"missing formula reference": {
			doc: `{"AllAccessPermissionRules": {"rules": [
				{"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "USEFORMULA": "nope"}]}}`,
			want: `USEFORMULA "nope" not found`,
		},
		"circular objects": {
			doc: `{"AllAccessPermissionRules": {
				"DEFOBJECTS": [{"name": "a", "USEOBJECTS": ["b"]}, {"name": "b", "USEOBJECTS": ["a"]}],
				"rules": [{"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "USEOBJECTS": ["a"], "FORMULA": {"$boolean": true}}]}}`,
			want: "circular USEOBJECTS reference",
		},
		"filter without condition": {
			doc: `{"AllAccessPermissionRules": {"rules": [
				{"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "FORMULA": {"$boolean": true}, "FILTER": {"FRAGMENT": "$sm#idShort"}}]}}`,
			want: "FILTER: CONDITION or USEFORMULA is required",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			model, err := ParseAccessRuleModel([]byte(tc.doc))
			require.NoError(t, err)
			_, err = model.Materialize()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestDematerializeProducesLoadableModel(t *testing.T) {
	model, err := ParseAccessRuleModel([]byte(modelWithDefinitions))
	require.NoError(t, err)
	rules, err := model.Materialize()
	require.NoError(t, err)

	raw, err := json.Marshal(Dematerialize(rules))
	require.NoError(t, err)

	again, err := ParseAccessRuleModel(raw)
	require.NoError(t, err)
	roundTripped, err := again.Materialize()
	require.NoError(t, err)
	require.Equal(t, rules, roundTripped)
}
