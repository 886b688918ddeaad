package auth

import (
	"testing"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/assert"
)

func TestMatchRoute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern, route string
		want           bool
	}{
		{"/shells", "/shells", true},
		{"/shells", "/shells/", true},
		{"/shells", "/shells/abc", false},
		{"/shells/*", "/shells/abc", true},
		{"/shells/*", "/shells/abc/submodels", true},
		{"/shells/*", "/shells", false},
		{"/shells/*", "/shellsX/abc", false},
		{"/*", "/anything", true},
		{"/*", "/", false},
		{"*", "/", true},
		{"**", "/a/b/c", true},
		{"/shells/**", "/shells", true},
		{"/shells/**", "/shells/a/b", true},
		{"/shells/**/submodels", "/shells/a/submodels", true},
		{"/shells/**/submodels", "/shells/a/b", false},
		{"shells", "/shells", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchRoute(tc.pattern, tc.route), "%s vs %s", tc.pattern, tc.route)
	}
}

func TestMatchIdentifier(t *testing.T) {
	t.Parallel()

	assert.True(t, matchIdentifier("*", ""))
	assert.True(t, matchIdentifier("urn:example:*", "urn:example:sm:1"))
	assert.False(t, matchIdentifier("urn:example:*", "urn:other:sm:1"))
	assert.True(t, matchIdentifier("urn:example:sm:1", "urn:example:sm:1"))
	assert.False(t, matchIdentifier("urn:example:sm:1", "urn:example:sm:10"))
}

func TestMatchesObjectPatterns(t *testing.T) {
	t.Parallel()

	target := TargetDescriptor{Route: "/submodels/abc", Identifiable: "urn:example:sm:1"}

	assert.True(t, MatchesAny(nil, target))
	assert.True(t, Matches(grammar.ObjectPattern{}, target))
	assert.True(t, Matches(grammar.ObjectPattern{Route: "/submodels/*", Identifiable: "urn:example:*"}, target))
	assert.False(t, Matches(grammar.ObjectPattern{Route: "/submodels/*", Identifiable: "urn:other:*"}, target))
	assert.False(t, Matches(grammar.ObjectPattern{Referable: "motor"}, target))

	assert.True(t, MatchesAny([]grammar.ObjectPattern{
		{Route: "/shells/*"},
		{Identifiable: "urn:example:sm:1"},
	}, target))
	assert.False(t, MatchesAny([]grammar.ObjectPattern{{Route: "/shells/*"}}, target))
}
