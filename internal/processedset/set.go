// Package processedset is the durable safety net for stores that cannot
// persist a processed flag themselves. It is not authoritative when the
// store can track its own state, and its backing data is safe to delete:
// the engine then degrades to re-checking everything once.
package processedset

import (
	"context"

	id "concilia/pkg/domain"
)

// Set records compliance check ids that were already handled. Add persists
// immediately, not batched, so a crash mid-cycle does not replay records.
type Set interface {
	Contains(ctx context.Context, checkID id.CheckID) (bool, error)
	Add(ctx context.Context, checkID id.CheckID) error
	Load(ctx context.Context) ([]id.CheckID, error)
}
