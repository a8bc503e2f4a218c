package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for run ID (one sync or compaction pass)
	RunIDKey ContextKey = "run_id"
	// SourceKey is the context key for the operation source, e.g. "cli",
	// "watcher", "scheduler"
	SourceKey ContextKey = "source"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	RunID   string
	Source  string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithSource adds an operation source to the context
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetSource retrieves the operation source from the context
func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(SourceKey).(string); ok {
		return source
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		RunID:   GetRunID(ctx),
		Source:  GetSource(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.Source != "" {
		ctx = WithSource(ctx, tc.Source)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context, source string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	if source != "" {
		ctx = WithSource(ctx, source)
	}
	return ctx
}

// NewRunContext creates a new context for one maintenance run, keeping the
// parent trace ID and generating a fresh run ID
func NewRunContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithRunID(ctx, NewRunID())
}
