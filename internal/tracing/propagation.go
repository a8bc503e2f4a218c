package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.Source != "" {
		logger = logger.With().Str("source", tc.Source).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context
// Useful when you need to combine contexts from different sources
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RunID != "" && GetRunID(target) == "" {
		target = WithRunID(target, tc.RunID)
	}
	if tc.Source != "" && GetSource(target) == "" {
		target = WithSource(target, tc.Source)
	}

	return target
}

// CloneContext creates a new context with the same tracing information,
// detached from the parent's cancellation
func CloneContext(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	return NewContext(context.Background(), tc)
}
