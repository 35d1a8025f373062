package llm

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"
)

// WithContext returns a context carrying call metadata for logging.
// The map is merged with any metadata already present.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any)
	}
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext returns a copy of the call metadata, or nil.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		copy := make(map[string]any, len(c))
		for k, v := range c {
			copy[k] = v
		}
		return copy
	}
	return nil
}

// WithSessionContext tags a call with the import session and round it serves.
func WithSessionContext(ctx context.Context, sessionID uuid.UUID, round int) context.Context {
	return WithContext(ctx, map[string]any{
		"session_id": sessionID.String(),
		"round":      round,
	})
}

// LogFields renders the call metadata as zap fields in key order.
func LogFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, values[k]))
	}
	return fields
}
