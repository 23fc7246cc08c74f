// Package audit captures structured audit events emitted by the sync
// engine. Publishing is best-effort: an unreachable sink never fails the
// operation that emitted the event.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fans an event out to its sinks.
type Publisher struct {
	sinks  []Store
	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger, sinks ...Store) *Publisher {
	return &Publisher{sinks: sinks, logger: logger}
}

// Emit appends the event to every sink. Sink failures are logged, not
// returned: audit must never block reconciliation.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			p.logger.Warn("audit sink append failed",
				"kind", string(event.Kind), "error", err)
		}
	}
}
