package records

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

const recordColumns = `id, kind, payload, payload_cipher, nonce, base_version, updated_at, sync_status, deleted_at, conflict_payload`

// Upsert writes a record by id. On conflict, all mutable columns are updated.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	query := ` INSERT INTO records (` + recordColumns + `)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
				payload_cipher = excluded.payload_cipher,
				nonce = excluded.nonce,
				base_version = excluded.base_version,
				updated_at = excluded.updated_at,
				sync_status = excluded.sync_status,
				deleted_at = excluded.deleted_at,
				conflict_payload = excluded.conflict_payload
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Kind, rec.Payload, rec.PayloadCipher, rec.Nonce,
		rec.BaseVersion, rec.UpdatedAt, rec.SyncStatus, rec.DeletedAt, rec.ConflictPayload)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// GetByID returns a single record by id, tombstones included.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `select ` + recordColumns + ` from records where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

// ListByKind lists all non-deleted records of the given kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	query := `select ` + recordColumns + ` from records where kind=? and deleted_at is null order by updated_at desc`
	return r.list(ctx, query, kind)
}

// ListByStatus lists all records in the given sync status, tombstones included.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.SyncStatus) ([]models.Record, error) {
	query := `select ` + recordColumns + ` from records where sync_status=? order by updated_at`
	return r.list(ctx, query, status)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetSynced marks a record synced with the given server baseline and clears
// any held conflict snapshot.
func (r *SQLiteRepository) SetSynced(ctx context.Context, id string, baseVersion int64) error {
	query := `update records set sync_status=?, base_version=?, conflict_payload=null where id=?`
	res, err := r.db.ExecContext(ctx, query, models.StatusSynced, baseVersion, id)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return requireOneRow(res)
}

// SetConflict flips a record to conflict, storing the remote snapshot.
func (r *SQLiteRepository) SetConflict(ctx context.Context, id string, remotePayload []byte) error {
	query := `update records set sync_status=?, conflict_payload=? where id=?`
	res, err := r.db.ExecContext(ctx, query, models.StatusConflict, remotePayload, id)
	if err != nil {
		return fmt.Errorf("failed to mark record conflict: %w", err)
	}
	return requireOneRow(res)
}

// SoftDelete turns a record into a pending tombstone.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `update records set deleted_at=?, updated_at=?, sync_status=? where id=? and deleted_at is null`
	res, err := r.db.ExecContext(ctx, query, at, at, models.StatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete record: %w", err)
	}
	return requireOneRow(res)
}

// HardDelete removes a record row outright.
func (r *SQLiteRepository) HardDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from records where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireOneRow(res)
}

// PurgeDeletedBefore removes acknowledged tombstones older than cutoff.
// Pending tombstones are never purged: the delete may still be in flight.
func (r *SQLiteRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `delete from records where deleted_at is not null and deleted_at < ? and sync_status=?`
	res, err := r.db.ExecContext(ctx, query, cutoff, models.StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	rec := &models.Record{}
	var deletedAt sql.NullTime
	err := scan(&rec.ID, &rec.Kind, &rec.Payload, &rec.PayloadCipher, &rec.Nonce,
		&rec.BaseVersion, &rec.UpdatedAt, &rec.SyncStatus, &deletedAt, &rec.ConflictPayload)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return rec, nil
}
