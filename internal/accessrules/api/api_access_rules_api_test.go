package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const testModelPath = "../testdata/access-rules.json"

const readerRuleJSON = `{
  "ACL": {"ATTRIBUTES": [{"CLAIM": "role"}], "RIGHTS": ["READ"], "ACCESS": "ALLOW"},
  "OBJECTS": [{"ROUTE": "/submodels/*"}],
  "FORMULA": {"$eq": [{"$attribute": {"CLAIM": "role"}}, {"$strVal": "auditor"}]}
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rt, err := accessrules.NewRuntime(context.Background(), accessrules.Options{
		Store:     auth.NewMemoryRuleStore(auth.WithStrictValidation()),
		ModelPath: testModelPath,
	})
	require.NoError(t, err)
	engine, err := auth.NewEngine(rt)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	r := chi.NewRouter()
	model.Mount(r, "", NewAccessRulesAPIController(NewAccessRulesAPIService(rt, engine)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestRuleCRUD(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/rules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []AccessRuleResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 2)

	resp, body = do(t, http.MethodPost, srv.URL+"/rules", readerRuleJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created AccessRuleResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	resp, body = do(t, http.MethodGet, srv.URL+"/rules/"+string(created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched AccessRuleResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	require.Equal(t, created.ID, fetched.ID)
	require.True(t, fetched.Rule.IsPermit())

	denied := bytes.Replace([]byte(readerRuleJSON), []byte(`"ALLOW"`), []byte(`"DISABLED"`), 1)
	resp, body = do(t, http.MethodPut, srv.URL+"/rules/"+string(created.ID), string(denied))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated AccessRuleResponse
	require.NoError(t, json.Unmarshal(body, &updated))
	require.True(t, updated.Rule.IsDeny())

	resp, _ = do(t, http.MethodDelete, srv.URL+"/rules/"+string(created.ID), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/rules/"+string(created.ID), "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, string(body), "RULES-GETACCESSRULEBYID-NOTFOUND")
}

func TestRuleValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/rules", `{"ACL":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "RULES-POSTACCESSRULE-BADREQUEST")

	resp, _ = do(t, http.MethodPost, srv.URL+"/rules", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	noObjects := `{"ACL": {"RIGHTS": ["READ"], "ACCESS": "ALLOW"}, "FORMULA": {"$boolean": true}}`
	resp, _ = do(t, http.MethodPost, srv.URL+"/rules", noObjects)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/rules/unknown", readerRuleJSON)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/rules/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDecisions(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name    string
		body    string
		outcome auth.Outcome
	}{
		{
			name:    "admin may do anything",
			body:    `{"subject":{"claims":{"role":"admin"}},"right":"DELETE","target":{"route":"/submodels/abc"}}`,
			outcome: auth.Permit,
		},
		{
			name:    "reader may read shells",
			body:    `{"subject":{"claims":{"role":"reader"}},"right":"READ","target":{"route":"/shells/abc"}}`,
			outcome: auth.Permit,
		},
		{
			name:    "reader may not update shells",
			body:    `{"subject":{"claims":{"role":"reader"}},"right":"UPDATE","target":{"route":"/shells/abc"}}`,
			outcome: auth.NotApplicable,
		},
		{
			name:    "anonymous matches nothing",
			body:    `{"subject":{"anonymous":true},"right":"READ","target":{"route":"/shells/abc"}}`,
			outcome: auth.NotApplicable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/decisions", tc.body)
			require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
			var decision auth.Decision
			require.NoError(t, json.Unmarshal(body, &decision))
			require.Equal(t, tc.outcome, decision.Outcome)
		})
	}

	resp, _ := do(t, http.MethodPost, srv.URL+"/decisions", `{"subject":{}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/decisions", `{"right":"FLY"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFilters(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/filters",
		`{"subject":{"claims":{"role":"reader"}},"right":"READ","table":"shells","columns":{"$route":"route"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var generic map[string]any
	require.NoError(t, json.Unmarshal(body, &generic))
	require.Equal(t, false, generic["fallbackRequired"])
	require.Len(t, generic["permitRuleIds"], 1)
	require.Contains(t, generic["sql"], `FROM "shells" WHERE`)
	require.NotEmpty(t, generic["args"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/filters",
		`{"subject":{"claims":{"role":"reader"}},"right":"READ","table":"shells","columns":{"$sm#idShort":"id_short"}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/filters", `{"right":"READ","table":"shells"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/filters", `{"subject":{"anonymous":true},"right":"READ"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &generic))
	require.Equal(t, map[string]any{"$boolean": false}, generic["predicate"])
}

func TestAccessRuleModelExportImportAndReload(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/access-rule-model", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "AllAccessPermissionRules")

	resp, body = do(t, http.MethodPut, srv.URL+"/access-rule-model", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var count RuleCountResponse
	require.NoError(t, json.Unmarshal(body, &count))
	require.Equal(t, 2, count.Rules)

	resp, _ = do(t, http.MethodPut, srv.URL+"/access-rule-model", `{"AllAccessPermissionRules":{}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/rules", readerRuleJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/rules/$reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &count))
	require.Equal(t, 2, count.Rules)

	model, err := os.ReadFile(testModelPath)
	require.NoError(t, err)
	resp, _ = do(t, http.MethodPut, srv.URL+"/access-rule-model", string(model))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
