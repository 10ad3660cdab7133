package store

import "context"

type contextKey string

// RunIDKey is the context key for the id of the current indexing run.
const RunIDKey contextKey = "recall_run_id"

// WithRunID returns a new context carrying the indexing run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunIDFromContext extracts the run id from context. Returns "" if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey).(string); ok {
		return v
	}
	return ""
}
