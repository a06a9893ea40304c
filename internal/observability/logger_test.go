package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:   DebugLevel,
		Output:  &buf,
		Service: "kpisync",
		Version: "1.0.0",
	})

	logger.Info("test message")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "test message", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "kpisync", entries[0]["service"])
	assert.Equal(t, "1.0.0", entries[0]["version"])
	assert.Contains(t, entries[0], "timestamp")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf})

	runLogger := logger.WithField("run_id", "abc")
	runLogger.WithFields(map[string]interface{}{"report": "Totals", "rows": 1}).Info("report written")
	logger.Info("parent untouched")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0]["run_id"])
	assert.Equal(t, "Totals", entries[0]["report"])
	assert.Equal(t, float64(1), entries[0]["rows"])
	assert.NotContains(t, entries[1], "run_id")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf})

	logger.WithError(errors.New("boom")).Error("report failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, "error", entries[0]["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: WarnLevel, Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["message"])

	logger.SetLevel(DebugLevel)
	logger.Debugf("now %s", "visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf, Text: true})
	logger.WithField("report", "Totals").Info("done")

	assert.Contains(t, buf.String(), `msg=done`)
	assert.Contains(t, buf.String(), `report=Totals`)
}

func TestLogLevelFromString(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"WARN":    WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, LogLevelFromString(in), in)
	}
}
