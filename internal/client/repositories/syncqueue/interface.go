package syncqueue

import (
	"context"

	"github.com/kith-app/kith/internal/client/models"
)

// Repository is the ordered list of pending mutations replayed against the
// server. At most one entry exists per record id: Enqueue coalesces a new
// mutation with an existing pending one instead of appending a duplicate.
type Repository interface {
	// Enqueue records a mutation for the given record, coalescing with any
	// existing pending entry (see models.Coalesce).
	Enqueue(ctx context.Context, recordID string, op models.Operation) error

	// DequeueBatch returns up to maxN entries in FIFO order by EnqueuedAt.
	// Entries stay in the queue until acked.
	DequeueBatch(ctx context.Context, maxN int) ([]models.SyncQueueEntry, error)

	// Ack removes the entry after the remote call fully succeeded.
	Ack(ctx context.Context, recordID string) error

	// Nack increments the attempt counter and records the error.
	Nack(ctx context.Context, recordID string, cause error) error

	// Get returns the pending entry for a record, or common.ErrNotFound.
	Get(ctx context.Context, recordID string) (*models.SyncQueueEntry, error)

	// Len returns the number of pending entries.
	Len(ctx context.Context) (int, error)
}
