package accessrules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/notify"
	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/persistence"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
	"github.com/stretchr/testify/require"
)

const modelPath = "testdata/access-rules.json"

// fakeRepository is an in-memory persistence.Repository whose next write can
// be made to fail.
type fakeRepository struct {
	mu      sync.Mutex
	records []persistence.Record
	failErr error
	schema  bool
}

func (f *fakeRepository) fail() error {
	err := f.failErr
	f.failErr = nil
	return err
}

func (f *fakeRepository) EnsureSchema(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schema = true
	return nil
}

func (f *fakeRepository) List(context.Context) ([]persistence.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]persistence.Record(nil), f.records...), nil
}

func (f *fakeRepository) Get(_ context.Context, id grammar.RuleID) (persistence.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return persistence.Record{}, common.NewErrNotFound(string(id))
}

func (f *fakeRepository) Insert(_ context.Context, rule grammar.Rule) (persistence.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return persistence.Record{}, err
	}
	rec := persistence.Record{ID: rule.ID, Rule: rule, UpdatedAt: time.Now()}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeRepository) Replace(_ context.Context, id grammar.RuleID, rule grammar.Rule) (persistence.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return persistence.Record{}, err
	}
	for i, rec := range f.records {
		if rec.ID == id {
			rule.ID = id
			f.records[i] = persistence.Record{ID: id, Rule: rule, UpdatedAt: time.Now()}
			return f.records[i], nil
		}
	}
	return persistence.Record{}, common.NewErrNotFound(string(id))
}

func (f *fakeRepository) Delete(_ context.Context, id grammar.RuleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return common.NewErrNotFound(string(id))
}

func (f *fakeRepository) ReplaceAll(_ context.Context, rules []grammar.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.records = f.records[:0]
	for i, rule := range rules {
		if rule.ID == "" {
			rule.ID = grammar.RuleID(string(rune('a' + i)))
		}
		f.records = append(f.records, persistence.Record{ID: rule.ID, Rule: rule})
	}
	return nil
}

func (f *fakeRepository) Ping(context.Context) error { return nil }
func (f *fakeRepository) Close() error               { return nil }

type publishedEvent struct {
	kind notify.EventKind
	id   string
}

type recordingNotifier struct {
	notify.Nop
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) Publish(_ context.Context, kind notify.EventKind, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{kind, id})
	return nil
}

func (n *recordingNotifier) published() []publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]publishedEvent(nil), n.events...)
}

func newRule(role string) grammar.Rule {
	return grammar.Rule{
		Attributes: []grammar.AttributeBinding{grammar.Claim("role")},
		Rights:     []grammar.Right{grammar.RightRead},
		Access:     grammar.AccessPermit,
		Objects:    []grammar.ObjectPattern{{Route: "/shells/*"}},
		Formula:    grammar.Compare(grammar.OpEq, grammar.Attr(grammar.Claim("role")), grammar.StrVal(role)),
	}
}

func newRepoRuntime(t *testing.T, repo *fakeRepository, notifier notify.Notifier) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background(), Options{
		Store:      auth.NewMemoryRuleStore(auth.WithStrictValidation()),
		Repository: repo,
		Notifier:   notifier,
		ModelPath:  modelPath,
	})
	require.NoError(t, err)
	return rt
}

func TestNewRuntimeLoadsModelFileWithoutRepository(t *testing.T) {
	rt, err := NewRuntime(context.Background(), Options{
		Store:     auth.NewMemoryRuleStore(),
		ModelPath: modelPath,
	})
	require.NoError(t, err)
	require.Equal(t, 2, rt.Snapshot().Len())
	require.NoError(t, rt.Ping(context.Background()))
	require.NoError(t, rt.Close())
}

func TestReloadKeepsModelRuleIDs(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, Options{
		Store:     auth.NewMemoryRuleStore(),
		ModelPath: modelPath,
	})
	require.NoError(t, err)

	before, err := rt.ListRules(ctx)
	require.NoError(t, err)
	require.NoError(t, rt.Reload(ctx))
	after, err := rt.ListRules(ctx)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		require.Equal(t, before[i].ID, after[i].ID)
		_, err := rt.GetRule(ctx, before[i].ID)
		require.NoError(t, err)
	}
}

func TestNewRuntimeFailsOnMissingModelFile(t *testing.T) {
	_, err := NewRuntime(context.Background(), Options{
		Store:     auth.NewMemoryRuleStore(),
		ModelPath: filepath.Join(t.TempDir(), "missing.json"),
	})
	require.ErrorContains(t, err, "SEC-RULES-LOADMODEL")
}

func TestNewRuntimeSyncsModelIntoRepository(t *testing.T) {
	repo := &fakeRepository{records: []persistence.Record{{ID: "stale", Rule: newRule("old")}}}
	rt, err := NewRuntime(context.Background(), Options{
		Store:            auth.NewMemoryRuleStore(),
		Repository:       repo,
		ModelPath:        modelPath,
		SyncModelToStore: true,
	})
	require.NoError(t, err)
	require.True(t, repo.schema)

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 2, rt.Snapshot().Len())
	_, found := rt.Snapshot().Get("stale")
	require.False(t, found)
}

func TestRuntimeWritesThroughToRepository(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	notifier := &recordingNotifier{}
	rt := newRepoRuntime(t, repo, notifier)

	id, err := rt.AddRule(ctx, newRule("reader"))
	require.NoError(t, err)
	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, stored.Rule.ID)

	deny := newRule("reader")
	deny.Access = grammar.AccessDeny
	require.NoError(t, rt.UpdateRule(ctx, id, deny))
	stored, err = repo.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, stored.Rule.IsDeny())

	require.NoError(t, rt.RemoveRule(ctx, id))
	_, err = repo.Get(ctx, id)
	require.True(t, common.IsErrNotFound(err))

	require.Equal(t, []publishedEvent{
		{notify.RuleAdded, string(id)},
		{notify.RuleUpdated, string(id)},
		{notify.RuleRemoved, string(id)},
	}, notifier.published())
}

func TestRuntimeRestoresMemoryWhenRepositoryFails(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	notifier := &recordingNotifier{}
	rt := newRepoRuntime(t, repo, notifier)

	repo.failErr = errors.New("db down")
	_, err := rt.AddRule(ctx, newRule("reader"))
	require.ErrorContains(t, err, "db down")
	require.Zero(t, rt.Snapshot().Len())

	id, err := rt.AddRule(ctx, newRule("reader"))
	require.NoError(t, err)

	repo.failErr = errors.New("db down")
	require.Error(t, rt.UpdateRule(ctx, id, newRule("writer")))
	current, err := rt.GetRule(ctx, id)
	require.NoError(t, err)
	require.Equal(t, newRule("reader").Formula, current.Formula)

	repo.failErr = errors.New("db down")
	require.Error(t, rt.RemoveRule(ctx, id))
	require.Equal(t, 1, rt.Snapshot().Len())

	repo.failErr = errors.New("db down")
	require.Error(t, rt.LoadRules(ctx, []grammar.Rule{newRule("a"), newRule("b")}))
	rules, err := rt.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, id, rules[0].ID)

	require.Len(t, notifier.published(), 1)
}

func TestRuntimeRejectsInvalidRulesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	rt := newRepoRuntime(t, repo, nil)

	invalid := newRule("reader")
	invalid.Objects = nil
	_, err := rt.AddRule(ctx, invalid)
	require.True(t, common.IsErrBadRequest(err))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRuntimeModelExportAndImport(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, Options{Store: auth.NewMemoryRuleStore(), ModelPath: modelPath})
	require.NoError(t, err)

	model, err := rt.ExportModel(ctx)
	require.NoError(t, err)
	require.Len(t, model.AllAccessPermissionRules.Rules, 2)

	data, err := os.ReadFile(modelPath)
	require.NoError(t, err)
	n, err := rt.ImportModel(ctx, data)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = rt.ImportModel(ctx, []byte(`{"AllAccessPermissionRules": {}}`))
	require.True(t, common.IsErrBadRequest(err))
}

func TestRuntimeReloadsFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	rt := newRepoRuntime(t, repo, nil)
	require.Zero(t, rt.Snapshot().Len())

	// a peer wrote directly to the shared repository
	rule := newRule("peer")
	rule.ID = "peer-rule"
	_, err := repo.Insert(ctx, rule)
	require.NoError(t, err)

	require.NoError(t, rt.Reload(ctx))
	_, found := rt.Snapshot().Get("peer-rule")
	require.True(t, found)
}

type channelSubscription struct {
	events chan notify.Event
}

func (s channelSubscription) Run(ctx context.Context, handle func(context.Context, notify.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			handle(ctx, ev)
		}
	}
}

type channelNotifier struct {
	notify.Nop
	sub channelSubscription
}

func (n channelNotifier) Subscribe(context.Context) (notify.Subscription, error) {
	return n.sub, nil
}

func TestRuntimeWatchReloadsOnPeerEvent(t *testing.T) {
	repo := &fakeRepository{}
	notifier := channelNotifier{sub: channelSubscription{events: make(chan notify.Event)}}
	rt := newRepoRuntime(t, repo, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Watch(ctx) }()

	rule := newRule("peer")
	rule.ID = "peer-rule"
	_, err := repo.Insert(context.Background(), rule)
	require.NoError(t, err)
	notifier.sub.events <- notify.Event{Origin: "peer", Kind: notify.RuleAdded, RuleID: "peer-rule"}

	require.Eventually(t, func() bool {
		_, found := rt.Snapshot().Get("peer-rule")
		return found
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
