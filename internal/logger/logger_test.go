package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", ServiceName: "pim", Output: &buf})

	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	log.WithFields(map[string]interface{}{"component": "audit"}).
		Error(ctx, "append failed", errors.New("boom"), map[string]interface{}{"entry_id": "e1"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "append failed", lines[0]["msg"])
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "pim", lines[0]["service"])
	assert.Equal(t, "audit", lines[0]["component"])
	assert.Equal(t, "e1", lines[0]["entry_id"])
	assert.Equal(t, "cid-1", lines[0]["correlation_id"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug(context.Background(), "hidden", nil)
	log.Info(context.Background(), "hidden", nil)
	log.Warn(context.Background(), "shown", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestLogSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	LogSecurityEvent(context.Background(), log, "audit_tamper_detected", "CRITICAL", map[string]interface{}{"entry_id": "e1"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "security", lines[0]["event_type"])
	assert.Equal(t, "audit_tamper_detected", lines[0]["security_event"])
}

func TestCorrelationIDFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	assert.NotPanics(t, func() {
		log.Info(context.Background(), "ignored", nil)
		log.WithFields(map[string]interface{}{"a": 1}).Error(context.Background(), "ignored", errors.New("x"), nil)
	})
}
