package devices

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

// Save upserts a device by id.
func (r *SQLiteRepository) Save(ctx context.Context, d *models.Device) error {
	query := ` INSERT INTO devices (id, name, type, public_key, approved_at, trusted)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				type = excluded.type,
				public_key = excluded.public_key,
				approved_at = excluded.approved_at,
				trusted = excluded.trusted
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Name, d.Type, d.PublicKey, d.ApprovedAt, d.Trusted)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// GetByID returns a single device.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := `select id, name, type, public_key, approved_at, trusted from devices where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	d, err := scanDevice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return d, nil
}

// ListTrusted returns all currently trusted devices.
func (r *SQLiteRepository) ListTrusted(ctx context.Context) ([]models.Device, error) {
	return r.list(ctx, `select id, name, type, public_key, approved_at, trusted from devices where trusted=1 order by approved_at`)
}

// ListAll returns every known device.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.Device, error) {
	return r.list(ctx, `select id, name, type, public_key, approved_at, trusted from devices order by id`)
}

func (r *SQLiteRepository) list(ctx context.Context, query string) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []models.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetTrusted flips the trusted flag. Granting trust stamps ApprovedAt;
// revoking clears it.
func (r *SQLiteRepository) SetTrusted(ctx context.Context, id string, trusted bool, at time.Time) error {
	var approvedAt any
	if trusted {
		approvedAt = at
	}
	res, err := r.db.ExecContext(ctx, `update devices set trusted=?, approved_at=? where id=?`, trusted, approvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update device trust: %w", err)
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

func scanDevice(scan func(dest ...any) error) (*models.Device, error) {
	d := &models.Device{}
	var approvedAt sql.NullTime
	if err := scan(&d.ID, &d.Name, &d.Type, &d.PublicKey, &approvedAt, &d.Trusted); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		d.ApprovedAt = &t
	}
	return d, nil
}
