package logger

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const TraceIDKey contextKey = "trace_id"
const LeadIDKey contextKey = "lead_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// EnsureTraceID attaches a fresh ULID trace id unless one is already present.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, ulid.Make().String())
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithLeadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, LeadIDKey, id)
}

func GetLeadID(ctx context.Context) string {
	if id, ok := ctx.Value(LeadIDKey).(string); ok {
		return id
	}
	return ""
}

// Attrs returns the context identifiers as slog key/value pairs.
func Attrs(ctx context.Context) []any {
	attrs := make([]any, 0, 4)
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, "trace_id", id)
	}
	if id := GetLeadID(ctx); id != "" {
		attrs = append(attrs, "lead_id", id)
	}
	return attrs
}
