// Package logger is a simple, pluggable logging seam used across actorkit's
// packages. Any type with the Logger method set can be installed with
// WithLogger; loggers from other packages whose method signatures differ
// (such as *zap.SugaredLogger or *logrus.Logger) need a small adapter.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the interface actorkit's internals log through. By default it
// is backed by log/slog; WithLogger overrides it process-wide.
type Logger interface {
	// Println is the standard level, kept for callers migrating off a
	// bare fmt.Println-style logger.
	Println(string)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var logger Logger = newSlogLogger()

// WithLogger sets the Logger for this package; by default logging is
// written through a structured log/slog handler to stderr.
func WithLogger(l Logger) {
	if l == nil {
		logger = newSlogLogger()
		return
	}
	logger = l
}

// Current returns the active Logger.
func Current() Logger {
	return logger
}

// Log writes a plain message through the active Logger.
func Log(msg string) {
	logger.Println(msg)
}

type slogLogger struct {
	h *slog.Logger
}

func newSlogLogger() *slogLogger {
	return &slogLogger{h: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

func (s *slogLogger) Println(msg string) { s.h.Info(msg) }
func (s *slogLogger) Debug(msg string, args ...any) {
	s.h.Log(context.Background(), slog.LevelDebug, msg, args...)
}
func (s *slogLogger) Info(msg string, args ...any) {
	s.h.Log(context.Background(), slog.LevelInfo, msg, args...)
}
func (s *slogLogger) Warn(msg string, args ...any) {
	s.h.Log(context.Background(), slog.LevelWarn, msg, args...)
}
func (s *slogLogger) Error(msg string, args ...any) {
	s.h.Log(context.Background(), slog.LevelError, msg, args...)
}
