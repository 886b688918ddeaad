package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v3": "/api/v3",
	} {
		require.Equal(t, want, NormalizeBasePath(in), in)
	}
}
