package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/music-parser/internal/config"
)

func TestNewJSONWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.log")

	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("hello", String("key", "value"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "value", entry["key"])
	assert.Contains(t, entry, "ts")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNewFromSettingsAppendsDiagnostics(t *testing.T) {
	s := config.DefaultSettings()
	s.DownloadPath = t.TempDir()
	s.LogFormat = "json"

	logger, err := NewFromSettings(s, true)
	require.NoError(t, err)
	logger.Warn("disk almost full")

	data, err := os.ReadFile(filepath.Join(s.DownloadPath, DiagnosticsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk almost full")
}

func TestWarnWithContextInjectsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WarnWithContext(logger, "slow sink", "progress_sink_slow", String(FieldImpact, "progress delayed"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "progress_sink_slow", entry[FieldEventType])
	assert.Equal(t, "progress delayed", entry[FieldImpact])
	assert.Equal(t, "check logs for details", entry[FieldErrorHint])
}

func TestComponentLoggerNilBase(t *testing.T) {
	logger := NewComponentLogger(nil, "storage")
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
