// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across the flow-table
// core. It wraps log/slog so call sites stay a single key/value tuple
// (logger.Info("msg", "key", val)) regardless of the backing handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is a thin, leveled wrapper around *slog.Logger.
type Logger struct {
	l *slog.Logger
}

// Options configures a new Logger.
type Options struct {
	// Level is the minimum level that will be emitted.
	Level slog.Level
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Writer is the output sink; defaults to os.Stderr.
	Writer io.Writer
}

// New creates a Logger per opts.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	return &Logger{l: slog.New(h)}
}

// Default returns a Logger writing text at Info level to stderr.
func Default() *Logger {
	return New(Options{Level: slog.LevelInfo})
}

// Discard returns a Logger that drops everything; used by tests.
func Discard() *Logger {
	return New(Options{Level: slog.LevelError + 1, Writer: io.Discard})
}

// With returns a child Logger that always carries kv.
func (lg *Logger) With(kv ...any) *Logger {
	return &Logger{l: lg.l.With(kv...)}
}

// Debug logs at debug level.
func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }

// Info logs at info level.
func (lg *Logger) Info(msg string, kv ...any) { lg.l.Info(msg, kv...) }

// Warn logs at warn level.
func (lg *Logger) Warn(msg string, kv ...any) { lg.l.Warn(msg, kv...) }

// Error logs at error level.
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }

// InfoContext logs at info level, attaching any slog attrs carried by ctx.
func (lg *Logger) InfoContext(ctx context.Context, msg string, kv ...any) {
	lg.l.InfoContext(ctx, msg, kv...)
}
