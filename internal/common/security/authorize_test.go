package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/require"
)

func newMiddlewareEngine(t *testing.T) *Engine {
	t.Helper()
	store := NewMemoryRuleStore()
	require.NoError(t, store.LoadRules(context.Background(), []grammar.Rule{
		withID(newRule(grammar.AccessPermit, "", roleIs("admin"), grammar.RightAll), "admin"),
		withID(newRule(grammar.AccessPermit, "/shells/*", roleIs("reader")), "reader"),
		withID(newRule(grammar.AccessDeny, "/shells/secret", grammar.Bool(true)), "secret"),
	}))
	return newTestEngine(t, store)
}

type capturedRequest struct {
	called bool
	filter *CompileResult
}

func serve(t *testing.T, settings ABACSettings, method, target string, subject *Subject) (*httptest.ResponseRecorder, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.called = true
		got.filter = GetQueryFilter(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, target, nil)
	if subject != nil {
		req = req.WithContext(WithSubject(req.Context(), *subject))
	}
	rec := httptest.NewRecorder()
	ABACMiddleware(settings)(next).ServeHTTP(rec, req)
	return rec, got
}

func TestABACMiddlewareDisabledPassesThrough(t *testing.T) {
	t.Parallel()
	rec, got := serve(t, ABACSettings{Enabled: false}, http.MethodDelete, "/shells/abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, got.called)
}

func TestABACMiddlewareWithoutEngineDenies(t *testing.T) {
	t.Parallel()
	rec, got := serve(t, ABACSettings{Enabled: true}, http.MethodGet, "/shells", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, got.called)
	require.Contains(t, rec.Body.String(), "MIDDLEWARE-RULES-NOENGINE")
}

func TestABACMiddlewareDecisions(t *testing.T) {
	t.Parallel()
	settings := ABACSettings{Enabled: true, Engine: newMiddlewareEngine(t), BasePath: "/api/v3"}
	reader := Subject{Claims: Claims{"role": "reader"}}
	admin := Subject{Claims: Claims{"role": "admin"}}

	cases := []struct {
		name    string
		method  string
		target  string
		subject *Subject
		want    int
	}{
		{"reader reads below base path", http.MethodGet, "/api/v3/shells/abc", &reader, http.StatusOK},
		{"reader may not delete", http.MethodDelete, "/api/v3/shells/abc", &reader, http.StatusForbidden},
		{"deny overrides admin", http.MethodGet, "/api/v3/shells/secret", &admin, http.StatusForbidden},
		{"admin deletes", http.MethodDelete, "/api/v3/submodels/x", &admin, http.StatusOK},
		{"anonymous is denied", http.MethodGet, "/api/v3/shells/abc", nil, http.StatusForbidden},
		{"unknown method is denied", "TRACE", "/api/v3/shells/abc", &admin, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, got := serve(t, settings, tc.method, tc.target, tc.subject)
			require.Equal(t, tc.want, rec.Code)
			require.Equal(t, tc.want == http.StatusOK, got.called)
			require.Nil(t, got.filter)
		})
	}
}

func TestABACMiddlewareStoresReadFilter(t *testing.T) {
	t.Parallel()
	settings := ABACSettings{Enabled: true, Engine: newMiddlewareEngine(t), FilterReads: true}
	reader := Subject{Claims: Claims{"role": "reader"}}

	rec, got := serve(t, settings, http.MethodGet, "/shells/abc", &reader)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.filter)
	require.Equal(t, []grammar.RuleID{"reader"}, got.filter.PermitRuleIDs)
	require.Equal(t, []grammar.RuleID{"secret"}, got.filter.DenyRuleIDs)

	admin := Subject{Claims: Claims{"role": "admin"}}
	rec, got = serve(t, settings, http.MethodPost, "/shells", &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, got.filter)
}

func TestStripBasePath(t *testing.T) {
	t.Parallel()
	require.Equal(t, "/shells", stripBasePath("/api/v3", "/api/v3/shells"))
	require.Equal(t, "/", stripBasePath("/api/v3", "/api/v3"))
	require.Equal(t, "/api/v30/shells", stripBasePath("/api/v3", "/api/v30/shells"))
	require.Equal(t, "/shells", stripBasePath("", "shells"))
	require.Equal(t, "/shells", stripBasePath("/", "/shells"))
}

func TestSubjectFromHeader(t *testing.T) {
	t.Parallel()
	var seen Subject
	handler := SubjectFromHeader("X-Subject-Claims")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("X-Subject-Claims", `{"role":"admin","clientTime":"2025-06-15T12:00:00+02:00"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, seen.Anonymous)
	require.Equal(t, "admin", seen.Claims["role"])
	require.NotNil(t, seen.ClientNow)
	require.True(t, seen.ClientNow.Equal(fixedNow.Add(-30*time.Minute)))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, seen.Anonymous)

	for _, bad := range []string{`not json`, `null`, `["a"]`, `{"clientTime":"yesterday"}`} {
		req = httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("X-Subject-Claims", bad)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
		require.Contains(t, rec.Body.String(), "MIDDLEWARE-SUBJECT-BADREQUEST")
	}
}
