package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: "warn", Format: "json", Writer: &buf}), "builder")
	l.Info("dropped")
	l.Warn("kept", slog.Int("nodes", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "builder", rec["component"])
	assert.EqualValues(t, 3, rec["nodes"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Writer: &buf}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
