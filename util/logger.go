// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Output formats accepted by [LoggerOptions.Format].
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// LoggerOptions configures [NewLoggerWithOptions].
type LoggerOptions struct {
	Verbosity  int
	Format     string    // auto, json or console
	Output     io.Writer // default os.Stderr
	Timestamps bool
}

// Logger is a levelled printf-style logger backed by zerolog.  It always
// writes to stderr by default because stdout may carry the MCP stdio
// stream.  A nil *Logger discards everything.
type Logger struct {
	level      LogLevel
	output     io.Writer
	format     string
	timestamps bool
	fields     []string // key, value pairs applied on rebuild
	zl         zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return NewLoggerWithOptions(LoggerOptions{
		Verbosity:  verbosity,
		Format:     FormatAuto,
		Timestamps: true,
	})
}

// NewLoggerWithOptions builds a Logger from explicit options.
func NewLoggerWithOptions(opts LoggerOptions) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{
		level:      clampLevel(opts.Verbosity),
		output:     out,
		format:     opts.Format,
		timestamps: opts.Timestamps,
	}
	l.rebuild()
	return l
}

// Nop returns a Logger that discards all output.
func Nop() *Logger {
	return NewLoggerWithOptions(LoggerOptions{Output: io.Discard, Format: FormatJSON})
}

// VerbosityFromLevel maps a LOG_LEVEL name onto a verbosity count.
// Unknown names map to normal.
func VerbosityFromLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error", "quiet":
		return int(LogQuiet)
	case "debug", "verbose":
		return int(LogVerbose)
	case "trace":
		return int(LogDebug)
	default:
		return int(LogNormal)
	}
}

// SetTimestamps enables or disables timestamps.
func (l *Logger) SetTimestamps(on bool) {
	if l == nil {
		return
	}
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.output = w
	l.rebuild()
}

// SetFormat switches between json, console and auto output.
func (l *Logger) SetFormat(format string) {
	if l == nil {
		return
	}
	l.format = format
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogQuiet
	}
	return l.level
}

// With returns a child logger that stamps every line with key=value.
func (l *Logger) With(key, value string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.fields = append(append([]string(nil), l.fields...), key, value)
	child.rebuild()
	return &child
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Info().Msgf(format, args...)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Warn().Msgf(format, args...)
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Debug().Msgf(format, args...)
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Trace().Msgf(format, args...)
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Error().Msgf(format, args...)
}

// Printf logs at debug level.  It lets libraries that accept a
// Printf-style logger (robfig/cron) write through this Logger.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Debug(format, args...)
}

// Zerolog exposes the underlying logger for libraries that want one.
func (l *Logger) Zerolog() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.zl
}

// ── internal ─────────────────────────────────────────────────────────

func (l *Logger) rebuild() {
	w := l.writer()
	ctx := zerolog.New(w).Level(zerologLevel(l.level)).With()
	if l.timestamps {
		ctx = ctx.Timestamp()
	}
	for i := 0; i+1 < len(l.fields); i += 2 {
		ctx = ctx.Str(l.fields[i], l.fields[i+1])
	}
	l.zl = ctx.Logger()
}

func (l *Logger) writer() io.Writer {
	out := zerolog.SyncWriter(l.output)
	switch l.format {
	case FormatJSON:
		return out
	case FormatConsole:
		return consoleWriter(out, false)
	default:
		if f, ok := l.output.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return consoleWriter(out, true)
		}
		return out
	}
}

func consoleWriter(out io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !color,
		TimeFormat: "15:04:05.000",
	}
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogQuiet:
		return zerolog.ErrorLevel
	case LogNormal:
		return zerolog.InfoLevel
	case LogVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func clampLevel(v int) LogLevel {
	switch {
	case v < 0:
		return LogQuiet
	case v > int(LogDebug):
		return LogDebug
	default:
		return LogLevel(v)
	}
}

// String implements fmt.Stringer.
func (l LogLevel) String() string {
	switch l {
	case LogQuiet:
		return "quiet"
	case LogNormal:
		return "normal"
	case LogVerbose:
		return "verbose"
	case LogDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}
