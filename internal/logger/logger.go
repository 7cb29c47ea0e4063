// Package logger provides structured logging on top of log/slog with
// typed field constructors, so call sites never build raw key/value pairs.
package logger

import (
	"io"
	"log/slog"
	"time"
)

// LogLevel selects the minimum severity a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Field is a typed key/value attribute attached to a log record.
type Field struct {
	attr slog.Attr
}

// String creates a string field.
func String(key, value string) Field {
	return Field{attr: slog.String(key, value)}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{attr: slog.Int(key, value)}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{attr: slog.Int64(key, value)}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{attr: slog.Uint64(key, value)}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{attr: slog.Bool(key, value)}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{attr: slog.Duration(key, value)}
}

// Any creates a field holding an arbitrary value.
func Any(key string, value any) Field {
	return Field{attr: slog.Any(key, value)}
}

// Error creates a field under the conventional "error" key.
// A nil error logs as the empty string.
func Error(err error) Field {
	if err == nil {
		return Field{attr: slog.String("error", "")}
	}
	return Field{attr: slog.String("error", err.Error())}
}

// Logger is the logging interface the rest of the codebase depends on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger that attaches the given fields to every record.
	With(fields ...Field) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger creates a Logger writing JSON records to w at the given level.
// The optional base fields are attached to every record.
func NewSlogLogger(w io.Writer, level LogLevel, base []Field) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	l := slog.New(h)
	if len(base) > 0 {
		l = l.With(attrArgs(base)...)
	}
	return &slogLogger{l: l}
}

func attrArgs(fields []Field) []any {
	args := make([]any, len(fields))
	for i := range fields {
		args[i] = fields[i].attr
	}
	return args
}

func (s *slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, attrArgs(fields)...) }
func (s *slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, attrArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, attrArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, attrArgs(fields)...) }

func (s *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{l: s.l.With(attrArgs(fields)...)}
}
