package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(verbosity int, buf *bytes.Buffer) *Logger {
	return NewLoggerWithOptions(LoggerOptions{
		Verbosity: verbosity,
		Format:    FormatConsole,
		Output:    buf,
	})
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(3, &buf)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, buf.String())

	for i, prefix := range []string{"ERR", "WRN", "INF", "DBG", "TRC"} {
		assert.Contains(t, lines[i], prefix, "line %d", i)
	}
}

func TestLogger_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(0, &buf)

	l.Info("should not appear")
	l.Verbose("should not appear")
	l.Debug("should not appear")
	l.Error("always appears")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1, buf.String())
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{Verbosity: 1, Format: FormatJSON, Output: &buf})
	l.SetTimestamps(true)

	l.Info("test")

	assert.Contains(t, buf.String(), `"time":`)
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{Verbosity: 1, Format: FormatJSON, Output: &buf})

	l.With("session", "abc").Warn("warning %d", 7)

	for _, want := range []string{`"level":"warn"`, `"session":"abc"`, `"message":"warning 7"`} {
		assert.Contains(t, buf.String(), want)
	}
}

func TestLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{Verbosity: 1, Format: FormatJSON, Output: &buf})

	_ = l.With("host", "a")
	l.Info("plain")

	assert.NotContains(t, buf.String(), "host", "parent logger picked up child field")
}

func TestLogger_Nil(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("x")
		l.Error("x")
		l.SetOutput(nil)
	})
	assert.Nil(t, l.With("k", "v"))
	assert.Equal(t, LogQuiet, l.Level())
}

func TestVerbosityFromLevel(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"error", 0},
		{"info", 1},
		{"", 1},
		{"DEBUG", 2},
		{"trace", 3},
		{"nonsense", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityFromLevel(tt.in), tt.in)
	}
}
