package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "info", true)

	l.Debug("hidden")
	With("component", "capture").Info("capture started", "session_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "capture started", entry["msg"])
	assert.Equal(t, "capture", entry["component"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestInitWriterText(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", false)

	L().Debug("speech cancelled", "utterance_id", "u1")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "utterance_id=u1")
}
