// Package logging provides structured logging helpers for the server.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/log"
)

// Logger wraps slog.Logger with convenience methods.
type Logger struct {
	*slog.Logger
}

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	// LoggerProvider, when set, also exports every record over OTLP.
	LoggerProvider *log.LoggerProvider
	// ScopeName names the OTLP instrumentation scope. Defaults to "graphql-admin".
	ScopeName string
	// Output receives local log lines. Defaults to stdout.
	Output io.Writer
}

// ParseLevel maps a configured level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the process logger. Local records carry trace_id and span_id
// when they are logged with a context that holds a recording span.
func NewLogger(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	var local slog.Handler
	if cfg.Format == "json" {
		local = slog.NewJSONHandler(out, opts)
	} else {
		local = slog.NewTextHandler(out, opts)
	}
	var handler slog.Handler = traceContextHandler{Handler: local}

	if cfg.LoggerProvider != nil {
		scope := cfg.ScopeName
		if scope == "" {
			scope = "graphql-admin"
		}
		handler = fanout{handler, otelslog.NewHandler(scope, otelslog.WithLoggerProvider(cfg.LoggerProvider))}
	}

	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithRequestID returns a logger that tags records with request_id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.With(slog.String("request_id", requestID))}
}

// WithFields returns a logger with additional attributes.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...)}
}
