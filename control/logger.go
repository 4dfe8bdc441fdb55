// File: control/logger.go
// Package control
// Author: momentics <momentics@gmail.com>
//
// Logger wraps log/slog behind a small sink so embedders can redirect
// output the same way api's event sinks let them redirect callbacks,
// without pulling in a third-party logging library the retrieval pack
// never demonstrates.
package control

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a thin façade over *slog.Logger, kept separate so components
// depend on control.Logger rather than importing log/slog directly.
type Logger struct {
	base *slog.Logger
}

// NewLogger builds a Logger writing structured JSON to os.Stdout at the
// given level.
func NewLogger(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(h)}
}

// With returns a Logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

// ErrorCtx logs err alongside msg, using the standard "err" attribute
// key so log aggregators can filter on it consistently.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, args ...any) {
	l.base.ErrorContext(ctx, msg, append(args, "err", err)...)
}
