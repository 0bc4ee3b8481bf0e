package records

import (
	"context"
	"time"

	"github.com/kith-app/kith/internal/client/models"
)

// Repository describes persistence operations for Record objects.
// Implementations are typically backed by a local SQLite database.
type Repository interface {
	// Upsert inserts a new record or updates an existing one by ID.
	Upsert(ctx context.Context, record *models.Record) error

	// GetByID returns a record by its identifier, including tombstones.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// ListByKind returns all non-deleted records of the given kind.
	ListByKind(ctx context.Context, kind models.Kind) ([]models.Record, error)

	// ListByStatus returns all records in the given sync status,
	// including tombstones.
	ListByStatus(ctx context.Context, status models.SyncStatus) ([]models.Record, error)

	// SetSynced stamps the server-confirmed baseline on a record.
	SetSynced(ctx context.Context, id string, baseVersion int64) error

	// SetConflict flips a record to conflict and stores the remote snapshot
	// for manual merge.
	SetConflict(ctx context.Context, id string, remotePayload []byte) error

	// SoftDelete turns a record into a pending tombstone.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// HardDelete removes a record row outright. Reserved for records the
	// server has never seen; replicated records go through SoftDelete.
	HardDelete(ctx context.Context, id string) error

	// PurgeDeletedBefore physically removes tombstones that the server has
	// acknowledged (synced) and whose deletion predates the cutoff.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
