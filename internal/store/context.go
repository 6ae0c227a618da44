package store

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RunIDKey is the context key for the batch-join run id.
	RunIDKey contextKey = "joinbridge_run_id"
)

// WithRunID returns a new context with the given batch run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunIDFromContext extracts the batch run ID from context. Returns "" if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey).(string); ok {
		return v
	}
	return ""
}

// LogAttrs returns the context's correlation ids as slog key/value pairs.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RunIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	return attrs
}
