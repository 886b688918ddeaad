package model

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRouter struct{}

func (pingRouter) Routes() Routes {
	return Routes{
		"Ping": Route{
			Method:  http.MethodGet,
			Pattern: "/ping",
			HandlerFunc: func(w http.ResponseWriter, _ *http.Request) {
				_ = EncodeJSONResponse(map[string]string{"status": "ok"}, nil, w)
			},
		},
	}
}

func TestMountUsesBasePath(t *testing.T) {
	r := chi.NewRouter()
	Mount(r, "/api/v3", pingRouter{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v3/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDefaultErrorHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	res := Response(http.StatusConflict, map[string]string{"code": "X"})
	DefaultErrorHandler(rec, nil, errors.New("boom"), &res)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"code":"X"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	DefaultErrorHandler(rec, nil, errors.New("boom"), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `"boom"`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, EncodeJSONResponse(nil, func(i int) *int { return &i }(http.StatusNoContent), rec))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())
}
