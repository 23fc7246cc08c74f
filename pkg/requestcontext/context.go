// Package requestcontext provides context accessors for values set by the
// scheduler or HTTP middleware and consumed by services. Keeping it free of
// net/http lets workers and tests import only what they need.
package requestcontext

import (
	"context"
	"time"
)

type (
	cycleIDKey struct{}
	timeKey    struct{}
)

// CycleID retrieves the poll-cycle identifier from the context. Empty when
// not running inside a scheduled tick.
func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCycleID injects a poll-cycle identifier into the context.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// Now retrieves the cycle-scoped time from context, falling back to
// time.Now. Workers pin the time once per tick so every record touched in a
// cycle carries the same timestamp; tests pin it for determinism.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}
