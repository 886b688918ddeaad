package auth

import (
	"testing"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/require"
)

func TestResolveClaims(t *testing.T) {
	t.Parallel()
	r := NewResolver(fixedClock)
	ctx := claimsContext(Claims{"role": "admin", "groups": []any{"a", "b"}})

	v, err := r.Resolve(grammar.Claim("role"), ctx)
	require.NoError(t, err)
	require.Equal(t, stringValue("admin"), v)

	v, err = r.Resolve(grammar.Claim("tenant"), ctx)
	require.NoError(t, err)
	require.True(t, v.IsNone())

	v, err = r.Resolve(grammar.Claim("groups"), ctx)
	require.NoError(t, err)
	require.True(t, v.IsNone())
}

func TestResolveGlobals(t *testing.T) {
	t.Parallel()
	r := NewResolver(fixedClock)

	v, err := r.Resolve(grammar.Global(grammar.GlobalUTCNow), EvaluationContext{})
	require.NoError(t, err)
	require.Equal(t, dateTimeValue(fixedNow), v)

	v, err = r.Resolve(grammar.Global(grammar.GlobalClientNow), EvaluationContext{})
	require.NoError(t, err)
	require.Equal(t, dateTimeValue(fixedNow), v)

	client := time.Date(2025, 6, 15, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	v, err = r.Resolve(grammar.Global(grammar.GlobalClientNow), EvaluationContext{Subject: Subject{ClientNow: &client}})
	require.NoError(t, err)
	require.Equal(t, dateTimeValue(client), v)

	v, err = r.Resolve(grammar.Global(grammar.GlobalLocalNow), EvaluationContext{})
	require.NoError(t, err)
	require.True(t, v.DateTime.Equal(fixedNow))

	_, err = r.Resolve(grammar.Global("TOMORROW"), EvaluationContext{})
	require.ErrorIs(t, err, grammar.ErrMalformedExpression)
}

func TestResolveAnonymous(t *testing.T) {
	t.Parallel()
	r := NewResolver(fixedClock)
	anonymous := grammar.Global(grammar.GlobalAnonymous)

	v, err := r.Resolve(anonymous, EvaluationContext{Subject: AnonymousSubject()})
	require.NoError(t, err)
	require.Equal(t, stringValue(AnonymousSentinel), v)

	v, err = r.Resolve(anonymous, claimsContext(Claims{"sub": "jane"}))
	require.NoError(t, err)
	require.True(t, v.IsNone())
}

func TestResolveReferences(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil)
	ctx := EvaluationContext{Target: TargetDescriptor{
		Route:        "/shells/abc",
		Identifiable: "urn:example:aas:1",
		Fields:       map[string]any{"$aasdesc#idShort": "pump"},
	}}

	v, err := r.Resolve(grammar.Reference("$aasdesc#idShort"), ctx)
	require.NoError(t, err)
	require.Equal(t, stringValue("pump"), v)

	v, err = r.Resolve(grammar.Reference(PathIdentifiable), ctx)
	require.NoError(t, err)
	require.Equal(t, stringValue("urn:example:aas:1"), v)

	v, err = r.ResolveField(PathFragment, ctx.Target)
	require.NoError(t, err)
	require.Equal(t, stringValue(""), v)

	_, err = r.Resolve(grammar.Reference("$sm#idShort"), ctx)
	require.ErrorIs(t, err, ErrUnknownReference)

	_, err = r.Resolve(grammar.AttributeBinding{Source: "HEADER", Name: "x"}, ctx)
	require.ErrorIs(t, err, grammar.ErrMalformedExpression)
}
