package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerPrefixesAndLevels(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("ABAC", &buf)

	lg.LogInfo("loaded %d rules", 3)
	lg.LogWarning("slow reload")
	lg.LogError("reload", errors.New("db down"))
	lg.LogError("ignored", nil)

	out := buf.String()
	require.Contains(t, out, "[ABAC] ")
	require.Contains(t, out, "INFO: loaded 3 rules")
	require.Contains(t, out, "WARN: slow reload")
	require.Contains(t, out, "ERROR: reload: db down")
	require.NotContains(t, out, "ignored")
	require.Contains(t, out, "logger_test.go")
}

func TestDebugIsGated(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("ABAC", &buf)

	SetDebug(false)
	lg.LogDebug("hidden")
	require.Empty(t, buf.String())

	SetDebug(true)
	defer SetDebug(false)
	lg.LogDebug("rule %s skipped", "r1")
	require.Contains(t, buf.String(), "DEBUG: rule r1 skipped")
}
