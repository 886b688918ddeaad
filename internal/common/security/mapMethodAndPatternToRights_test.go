package auth

import (
	"net/http"
	"testing"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/assert"
)

func TestRightFor(t *testing.T) {
	t.Parallel()
	m := NewRightsMapper()

	cases := []struct {
		method, path string
		want         grammar.Right
	}{
		{http.MethodGet, "/rules", grammar.RightRead},
		{http.MethodPost, "/rules", grammar.RightCreate},
		{http.MethodPut, "/rules/abc", grammar.RightUpdate},
		{http.MethodDelete, "/rules/abc", grammar.RightDelete},
		{http.MethodPost, "/rules/$reload", grammar.RightUpdate},
		{http.MethodPost, "/decisions", grammar.RightRead},
		{http.MethodPost, "/filters", grammar.RightRead},
		{http.MethodPost, "/query/submodels", grammar.RightRead},
		{http.MethodPost, "/submodels/c20x/submodel-elements/op/invoke", grammar.RightExecute},
		{http.MethodGet, "/submodels/c20x/submodel-elements/op/operation-status/h1", grammar.RightExecute},
		{http.MethodGet, "/shells", grammar.RightRead},
		{http.MethodHead, "/shells", grammar.RightRead},
		{http.MethodPost, "/shells", grammar.RightCreate},
		{http.MethodPost, "/custom/invoke-now", grammar.RightExecute},
		{http.MethodPatch, "/shells/abc", grammar.RightUpdate},
		{http.MethodDelete, "/shells/abc", grammar.RightDelete},
		{"TRACE", "/shells", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.RightFor(tc.method, tc.path), "%s %s", tc.method, tc.path)
	}
}
