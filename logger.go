package pocketflow

import (
	"context"
	"log/slog"
)

// Logger provides structured logging.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// NewSlogLogger adapts a *slog.Logger. A nil logger uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) logger() *slog.Logger {
	if s.l == nil {
		return slog.Default()
	}
	return s.l
}

func (s *slogLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	s.logger().DebugContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	s.logger().InfoContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	s.logger().WarnContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	s.logger().ErrorContext(ctx, msg, keysAndValues...)
}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
