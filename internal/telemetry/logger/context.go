package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "openmc.logger"
	// runIDKey is the context key for the run identifier.
	runIDKey contextKey = "openmc.run_id"
	// rankKey is the context key for the parallel rank.
	rankKey contextKey = "openmc.rank"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRunID adds a run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run identifier from context.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRank adds a parallel rank to the context.
func WithRank(ctx context.Context, rank int) context.Context {
	return context.WithValue(ctx, rankKey, rank)
}

// RankFromContext extracts the parallel rank from context.
// Returns -1 if none is set.
func RankFromContext(ctx context.Context) int {
	if r, ok := ctx.Value(rankKey).(int); ok {
		return r
	}
	return -1
}

// L is a shorthand for FromContext that also enriches the logger with
// the run identifier and rank from the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)

	if runID := RunIDFromContext(ctx); runID != "" {
		l = l.With("run_id", runID)
	}
	if rank := RankFromContext(ctx); rank >= 0 {
		l = l.With("rank", rank)
	}

	return l
}
