package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLoggerTo(&buf, "warn", "json", false)

	log.Info("auth.login.ok")
	log.Warn("auth.login.fail", "reason", "bad_password")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "info must be filtered at warn level")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "auth.login.fail", rec["msg"])
	assert.Equal(t, "bad_password", rec["reason"])
	assert.Contains(t, rec, "source")
}

func TestNewLogger_Pretty(t *testing.T) {
	t.Setenv("SAUAT_LOG_WIDTH", "200")

	var buf bytes.Buffer
	log := newLoggerTo(&buf, "debug", "pretty", false)
	log.Debug("presence.ws.open", "count", 3)

	out := buf.String()
	assert.Contains(t, out, "[DEBUG]")
	assert.Contains(t, out, "msg=presence.ws.open")
	assert.Contains(t, out, "count=3")
}
