package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Enqueue coalesces op with any pending entry for the record. Coalescing
// resets the attempt counter: the net operation is a new mutation, not a
// retry of the failed one.
func (r *SQLiteRepository) Enqueue(ctx context.Context, recordID string, op models.Operation) error {
	existing, err := r.Get(ctx, recordID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	net := op
	if existing != nil {
		coalesced, keep := models.Coalesce(existing.Operation, op)
		if !keep {
			return r.Ack(ctx, recordID)
		}
		net = coalesced
	}

	query := ` INSERT INTO sync_queue (record_id, operation, attempt, last_error, enqueued_at)
			values (?, ?, 0, null, ?)
			ON CONFLICT(record_id) DO UPDATE SET operation = excluded.operation,
				attempt = 0,
				last_error = null
	`
	if _, err := r.db.ExecContext(ctx, query, recordID, net, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

// DequeueBatch returns up to maxN entries in FIFO order by enqueue time.
func (r *SQLiteRepository) DequeueBatch(ctx context.Context, maxN int) ([]models.SyncQueueEntry, error) {
	query := `select record_id, operation, attempt, last_error, enqueued_at
			from sync_queue order by enqueued_at, record_id limit ?`
	rows, err := r.db.QueryContext(ctx, query, maxN)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue entries: %w", err)
	}
	defer rows.Close()

	var result []models.SyncQueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Ack removes a pending entry. Acking an absent entry is not an error: the
// entry may have coalesced away while the push was in flight.
func (r *SQLiteRepository) Ack(ctx context.Context, recordID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from sync_queue where record_id=?`, recordID); err != nil {
		return fmt.Errorf("failed to ack queue entry: %w", err)
	}
	return nil
}

// Nack increments the attempt counter and records the failure cause.
func (r *SQLiteRepository) Nack(ctx context.Context, recordID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.ExecContext(ctx,
		`update sync_queue set attempt=attempt+1, last_error=? where record_id=?`, msg, recordID)
	if err != nil {
		return fmt.Errorf("failed to nack queue entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Get returns the pending entry for a record.
func (r *SQLiteRepository) Get(ctx context.Context, recordID string) (*models.SyncQueueEntry, error) {
	query := `select record_id, operation, attempt, last_error, enqueued_at from sync_queue where record_id=?`
	row := r.db.QueryRowContext(ctx, query, recordID)

	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return entry, nil
}

// Len returns the number of pending entries.
func (r *SQLiteRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func scanEntry(scan func(dest ...any) error) (*models.SyncQueueEntry, error) {
	entry := &models.SyncQueueEntry{}
	var lastError sql.NullString
	if err := scan(&entry.RecordID, &entry.Operation, &entry.Attempt, &lastError, &entry.EnqueuedAt); err != nil {
		return nil, err
	}
	entry.LastError = lastError.String
	return entry, nil
}
