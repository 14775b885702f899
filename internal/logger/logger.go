// Package logger wraps zerolog.Logger with the constructors used by the
// credvault binary and its components.
//
// Secrets must never be passed to a logger: log identifiers, counts and
// error values only.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New returns a JSON logger writing to w at the given level. An unknown
// level falls back to info.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(w).Level(lvl).With().
		Str("app", "credvault").
		Timestamp().
		Logger()

	return &Logger{logger}
}

// NewConsole returns a human-readable logger on stderr, used with --verbose.
func NewConsole(level string) *Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return New(out, level)
}

// NewFile opens (or creates) a log file at path and returns a JSON logger
// appending to it together with the file so the caller can close it. If the
// file cannot be opened the logger discards output.
func NewFile(path, level string) (*Logger, io.Closer) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Nop(), io.NopCloser(nil)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Nop(), io.NopCloser(nil)
	}
	return New(f, level), f
}

// Nop returns a *Logger that discards all log output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str("component", name).Logger()}
}

// WithContext attaches the logger to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.Logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or zerolog's disabled
// logger when none is attached.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}
