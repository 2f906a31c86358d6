package domain

import (
	"context"
)

// Logger is the engine-wide structured logging interface. Implementations
// handle structured output (JSON via Zap). Methods take a context.Context
// first so request and event IDs travel with the log line; the variadic
// fields argument carries key-value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // logs, then os.Exit(1)

	// With creates a child logger with the provided structured context fields.
	With(fields ...any) Logger
}
