package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(buf *bytes.Buffer) *StandardLogger {
	return &StandardLogger{logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestLogStartup(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	l.LogStartup("pioneerwatch", "1.0.0")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "startup", line["event"])
	assert.Equal(t, "pioneerwatch", line["service"])
	assert.Equal(t, "1.0.0", line["version"])
}

func TestLogShutdown(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	l.LogShutdown("pioneerwatch", "signal received")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shutdown", line["event"])
	assert.Equal(t, "signal received", line["reason"])
}

func TestGetSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getSlogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, getSlogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, getSlogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getSlogLevel("anything else"))
}

func TestParseLogrusLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogrusLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLogrusLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, ParseLogrusLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLogrusLevel(""))
}

func TestNewLogrusLoggerLevel(t *testing.T) {
	logger := NewLogrusLogger("debug")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
