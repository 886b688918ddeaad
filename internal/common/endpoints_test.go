package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	healthy := true
	r := chi.NewRouter()
	AddHealthEndpoint(r, &Config{Server: ServerConfig{ContextPath: "/api"}}, map[string]HealthCheck{
		"rules": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"UP"}`, rec.Body.String())

	healthy = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"DOWN","details":{"rules":"connection refused"}}`, rec.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()
	require.Equal(t, http.StatusNotFound, StatusCodeFor(NewErrNotFound("r1")))
	require.Equal(t, http.StatusBadRequest, StatusCodeFor(NewErrBadRequest("bad")))
	require.Equal(t, http.StatusConflict, StatusCodeFor(NewErrConflict("dup")))
	require.Equal(t, http.StatusInternalServerError, StatusCodeFor(errors.New("boom")))
	require.False(t, IsErrNotFound(nil))

	resp := NewErrorResponse(NewErrNotFound("r1"), http.StatusNotFound, "Rules", "GetRule", "NotFound")
	require.Equal(t, http.StatusNotFound, resp.Code)
	body, ok := resp.Body.([]ErrorHandler)
	require.True(t, ok)
	require.Equal(t, "RULES-GETRULE-NOTFOUND", body[0].Code)
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()
	var out struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSONBody(req, &out))
	require.Equal(t, "x", out.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.True(t, IsErrBadRequest(DecodeJSONBody(req, &out)))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
	require.True(t, IsErrBadRequest(DecodeJSONBody(req, &out)))
}
