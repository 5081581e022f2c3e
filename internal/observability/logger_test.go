package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
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
		"bogus":   slog.LevelInfo,
	}
	for name, want := range cases {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestWriterLoggerJSONCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("info", "json", &buf)

	ctx := ContextWithTraceID(context.Background(), "trace-1")
	ctx = ContextWithOccurrence(ctx, "morning_20240601")
	logger.WithContext(ctx).Info("dispatched", "slot", "morning")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "dispatched", record["msg"])
	assert.Equal(t, "trace-1", record["trace_id"])
	assert.Equal(t, "morning_20240601", record["occurrence"])
	assert.Equal(t, "morning", record["slot"])
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("warn", "text", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "bot.log")
	var stdout bytes.Buffer

	logger, closer, err := NewLogger(LogConfig{Level: "debug", Format: "text", Output: &stdout, File: path})
	require.NoError(t, err)

	logger.Debug("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello file"))
	assert.Contains(t, stdout.String(), "hello file")
}

func TestSanitizeSecret(t *testing.T) {
	assert.Equal(t, "***", SanitizeSecret("short"))
	assert.Equal(t, "abcd...wxyz", SanitizeSecret("abcdefghijklmnopqrstuvwxyz"))
}
