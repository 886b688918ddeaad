package auth

import (
	"context"
	"testing"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ set *RuleSet }

func (s staticSource) Snapshot() *RuleSet { return s.set }

func newTestEngine(t *testing.T, source RuleSource) *Engine {
	t.Helper()
	e, err := NewEngine(source, WithClock(fixedClock), WithRegexCacheSize(32))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func withID(r grammar.Rule, id grammar.RuleID) grammar.Rule {
	r.ID = id
	return r
}

func TestEngineAdminScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryRuleStore(WithIDGenerator(sequentialIDs()))
	permitID, err := store.AddRule(ctx, newRule(grammar.AccessPermit, "/shells/*", roleIs("admin")))
	require.NoError(t, err)
	e := newTestEngine(t, store)

	target := TargetDescriptor{Route: "/shells/abc"}
	admin := Subject{Claims: Claims{"role": "admin"}}

	d := e.Decide(admin, grammar.RightRead, target)
	require.Equal(t, Permit, d.Outcome)
	require.Equal(t, []grammar.RuleID{permitID}, d.MatchedRuleIDs)
	require.True(t, d.Allowed())

	d = e.Decide(Subject{Claims: Claims{"role": "user"}}, grammar.RightRead, target)
	require.Equal(t, NotApplicable, d.Outcome)
	require.Empty(t, d.MatchedRuleIDs)
	require.False(t, d.Allowed())

	denyID, err := store.AddRule(ctx, newRule(grammar.AccessDeny, "/shells/abc", grammar.Bool(true)))
	require.NoError(t, err)

	d = e.Decide(admin, grammar.RightRead, target)
	require.Equal(t, Deny, d.Outcome)
	require.Equal(t, []grammar.RuleID{denyID}, d.MatchedRuleIDs)

	d = e.Decide(admin, grammar.RightRead, TargetDescriptor{Route: "/shells/other"})
	require.Equal(t, Permit, d.Outcome)
}

func TestEngineRightsAndObjects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryRuleStore()
	require.NoError(t, store.LoadRules(ctx, []grammar.Rule{
		withID(newRule(grammar.AccessPermit, "", roleIs("admin"), grammar.RightAll), "global-admin"),
		withID(newRule(grammar.AccessPermit, "/submodels/*", roleIs("editor"), grammar.RightUpdate), "editor"),
	}))
	e := newTestEngine(t, store)

	admin := Subject{Claims: Claims{"role": "admin"}}
	for _, right := range []grammar.Right{grammar.RightRead, grammar.RightCreate, grammar.RightDelete, grammar.RightExecute} {
		require.Equal(t, Permit, e.Decide(admin, right, TargetDescriptor{Route: "/anything"}).Outcome, right)
	}

	editor := Subject{Claims: Claims{"role": "editor"}}
	require.Equal(t, Permit, e.Decide(editor, grammar.RightUpdate, TargetDescriptor{Route: "/submodels/x"}).Outcome)
	require.Equal(t, NotApplicable, e.Decide(editor, grammar.RightRead, TargetDescriptor{Route: "/submodels/x"}).Outcome)
	require.Equal(t, NotApplicable, e.Decide(editor, grammar.RightUpdate, TargetDescriptor{Route: "/shells/x"}).Outcome)
}

func TestEngineEmptyRuleSet(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, NewMemoryRuleStore())
	d := e.Decide(Subject{Claims: Claims{"role": "admin"}}, grammar.RightRead, TargetDescriptor{Route: "/shells"})
	require.Equal(t, NotApplicable, d.Outcome)

	e = newTestEngine(t, staticSource{})
	require.Equal(t, NotApplicable, e.Decide(AnonymousSubject(), grammar.RightRead, TargetDescriptor{}).Outcome)
}

func TestEngineSkipsRulesThatFailToEvaluate(t *testing.T) {
	t.Parallel()
	broken := grammar.Rule{
		ID:      "broken",
		Rights:  []grammar.Right{grammar.RightRead},
		Access:  grammar.AccessDeny,
		Formula: grammar.Expression{Kind: grammar.ExprCompare, Op: grammar.OpEq, Operands: []grammar.Value{grammar.StrVal("x")}},
	}
	unknownField := grammar.Rule{
		ID:      "unknown-field",
		Rights:  []grammar.Right{grammar.RightRead},
		Access:  grammar.AccessDeny,
		Formula: grammar.Compare(grammar.OpEq, grammar.Field("$sm#idShort"), grammar.StrVal("x")),
	}
	ok := withID(newRule(grammar.AccessPermit, "", roleIs("admin")), "ok")
	e := newTestEngine(t, staticSource{set: newRuleSet([]grammar.Rule{broken, unknownField, ok})})

	d := e.Decide(Subject{Claims: Claims{"role": "admin"}}, grammar.RightRead, TargetDescriptor{Route: "/x"})
	require.Equal(t, Permit, d.Outcome)
	require.Equal(t, []grammar.RuleID{"ok"}, d.MatchedRuleIDs)
}

func TestEngineAttributesGate(t *testing.T) {
	t.Parallel()
	referencing := grammar.Rule{
		ID:         "ref",
		Attributes: []grammar.AttributeBinding{grammar.Reference("$sm#idShort")},
		Rights:     []grammar.Right{grammar.RightRead},
		Access:     grammar.AccessPermit,
		Formula:    grammar.Bool(true),
	}
	claimed := withID(newRule(grammar.AccessDeny, "", grammar.Bool(true)), "needs-role")
	e := newTestEngine(t, staticSource{set: newRuleSet([]grammar.Rule{referencing, claimed})})

	d := e.Decide(Subject{Claims: Claims{}}, grammar.RightRead, TargetDescriptor{Fields: map[string]any{"$sm#idShort": "motor"}})
	require.Equal(t, Permit, d.Outcome)

	d = e.Decide(Subject{Claims: Claims{"role": "x"}}, grammar.RightRead, TargetDescriptor{Fields: map[string]any{"$sm#idShort": "motor"}})
	require.Equal(t, Deny, d.Outcome)

	d = e.Decide(Subject{Claims: Claims{}}, grammar.RightRead, TargetDescriptor{})
	require.Equal(t, NotApplicable, d.Outcome)
}

func TestEngineAnonymousRule(t *testing.T) {
	t.Parallel()
	rule := grammar.Rule{
		ID:         "public",
		Attributes: []grammar.AttributeBinding{grammar.Global(grammar.GlobalAnonymous)},
		Rights:     []grammar.Right{grammar.RightRead},
		Access:     grammar.AccessPermit,
		Objects:    []grammar.ObjectPattern{{Route: "/description"}},
		Formula: grammar.Compare(grammar.OpEq,
			grammar.Attr(grammar.Global(grammar.GlobalAnonymous)), grammar.StrVal(AnonymousSentinel)),
	}
	e := newTestEngine(t, staticSource{set: newRuleSet([]grammar.Rule{rule})})

	require.Equal(t, Permit, e.Decide(AnonymousSubject(), grammar.RightRead, TargetDescriptor{Route: "/description"}).Outcome)
	require.Equal(t, NotApplicable, e.Decide(Subject{Claims: Claims{"sub": "jane"}}, grammar.RightRead, TargetDescriptor{Route: "/description"}).Outcome)
}

func TestEngineIsDeterministic(t *testing.T) {
	t.Parallel()
	rules := []grammar.Rule{
		withID(newRule(grammar.AccessPermit, "/shells/*", roleIs("admin")), "a"),
		withID(newRule(grammar.AccessPermit, "", grammar.Bool(true)), "b"),
		withID(newRule(grammar.AccessDeny, "/shells/locked", grammar.Bool(true)), "c"),
	}
	e := newTestEngine(t, staticSource{set: newRuleSet(rules)})
	subject := Subject{Claims: Claims{"role": "admin"}}

	first := e.Decide(subject, grammar.RightRead, TargetDescriptor{Route: "/shells/open"})
	require.Equal(t, []grammar.RuleID{"a", "b"}, first.MatchedRuleIDs)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, e.Decide(subject, grammar.RightRead, TargetDescriptor{Route: "/shells/open"}))
	}
	require.Equal(t, Deny, e.Decide(subject, grammar.RightRead, TargetDescriptor{Route: "/shells/locked"}).Outcome)
}

func TestNewEngineRejectsNilSource(t *testing.T) {
	t.Parallel()
	_, err := NewEngine(nil)
	require.Error(t, err)
}

func TestOutcomeJSON(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(Decision{Outcome: Deny, MatchedRuleIDs: []grammar.RuleID{"r1"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"outcome":"DENY","matchedRuleIds":["r1"]}`, string(raw))

	var o Outcome
	require.NoError(t, json.Unmarshal([]byte(`"NOT_APPLICABLE"`), &o))
	require.Equal(t, NotApplicable, o)
	require.Error(t, json.Unmarshal([]byte(`"MAYBE"`), &o))
}
