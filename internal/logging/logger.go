// Package logging defines the structured-logging interface used across
// gophchat, backed by log/slog.
//
// Keys, passwords and plaintext must never be passed as log arguments.
// Wrap anything that might carry such material in Secret.
package logging

import (
	"context"
	"log/slog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "channel created", "channel_id", id, "members", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Secret hides its value from every slog handler.
type Secret []byte

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}
