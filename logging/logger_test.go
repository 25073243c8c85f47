package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestMeshLogger_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "pipeline"})

	l.WithTrace("trace-1").With("agent_id", "a1").Info("decision.received", "action", "system_ping")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "decision.received", lines[0]["msg"])
	assert.Equal(t, "pipeline", lines[0]["component"])
	assert.Equal(t, "trace-1", lines[0]["trace_id"])
	assert.Equal(t, "a1", lines[0]["agent_id"])
	assert.Equal(t, "system_ping", lines[0]["action"])
}

func TestMeshLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestMeshLogger_CloneIsolation(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Output: &buf})
	_ = base.With("k", "v")

	base.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["k"]
	assert.False(t, ok)
}

func TestLogActionCall(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Output: &buf, Level: LogLevelDebug})

	LogActionCall(l, "t1", "echo_payload", time.Millisecond, nil)
	LogActionCall(l, "t2", "mock_deploy", time.Millisecond, errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "action.call.completed", lines[0]["msg"])
	assert.Equal(t, "action.call.failed", lines[1]["msg"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "t2", lines[1]["trace_id"])
}

func TestLogModelCall(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Output: &buf})

	LogModelCall(l, "gpt-4o-mini", "openai", time.Second, nil)
	LogModelCall(l, "claude", "anthropic", time.Second, errors.New("rate limited"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "openai", lines[0]["provider"])
	assert.Equal(t, "ERROR", lines[1]["level"])
}

func TestLogDecision_WarnsOnFailure(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Output: &buf})

	LogDecision(l, "t1", "system_ping", "executed", 1.5, nil)
	LogDecision(l, "t2", "nope", "rejected", 0.2, []string{"Unknown action: nope"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, []any{"Unknown action: nope"}, lines[1]["errors"])
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Info("decision.finished", "trace_id", "t1")
	l.Error("persistence.write_failed", "error", "locked")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "decision.finished", entries[0].Message)
	assert.Equal(t, "t1", entries[0].ContextMap()["trace_id"])
	assert.Equal(t, "persistence.write_failed", entries[1].Message)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
	})
}
