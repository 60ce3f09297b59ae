package log

import "context"

// Fields is a set of structured log fields.
type Fields map[string]any

// Logger is the structured logger handed to components that log per request.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	With(fields Fields) Logger
}
