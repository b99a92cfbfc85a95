package logging

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

func TestLogLevelString(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, level)

	level, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, level)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		record := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, record)
	}

	return records
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	worker := logger.WithComponent("worker").With("source", "a.tex")
	worker.Error(context.Background(), errors.New("exit status 1"), "Build failed", "exit_code", 1)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "Build failed", record["msg"])
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "worker", record["component"])
	assert.Equal(t, "a.tex", record["source"])
	assert.Equal(t, "exit status 1", record["error"])
	assert.Equal(t, float64(1), record["exit_code"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: "json", Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden")
	logger.Warn(context.Background(), nil, "shown")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "shown", records[0]["msg"])
}

func TestWithDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})

	_ = base.With("request_id", "abc")
	base.Info(context.Background(), "plain")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	_, ok := records[0]["request_id"]
	assert.False(t, ok)
}

func TestOddFieldsAreDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})

	logger.Info(context.Background(), "odd", "key", "value", 7, "ignored", "dangling")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "value", records[0]["key"])
	_, ok := records[0]["dangling"]
	assert.False(t, ok)
}

func TestNopLoggerWritesNothing(t *testing.T) {
	logger := Nop()
	logger.Error(context.Background(), errors.New("x"), "nothing")
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	perf := StartOperation(logger, "build")
	duration := perf.End(context.Background(), "source", "a.tex")

	assert.GreaterOrEqual(t, int64(duration), int64(0))
	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "build", records[0]["operation"])
	assert.Equal(t, "a.tex", records[0]["source"])
}
