package devices

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE devices (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  public_key BLOB NOT NULL,
  approved_at TIMESTAMP,
  trusted INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func TestSaveAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	d := &models.Device{ID: "dev-1", Name: "laptop", Type: "desktop", PublicKey: []byte{1, 2, 3}}
	require.NoError(t, r.Save(ctx, d))

	got, err := r.GetByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Name)
	assert.False(t, got.Trusted)
	assert.Nil(t, got.ApprovedAt)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetTrusted_GrantAndRevoke(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, &models.Device{ID: "dev-1", Name: "laptop", Type: "desktop", PublicKey: []byte{1}}))
	require.NoError(t, r.Save(ctx, &models.Device{ID: "dev-2", Name: "phone", Type: "mobile", PublicKey: []byte{2}}))

	now := time.Now().UTC()
	require.NoError(t, r.SetTrusted(ctx, "dev-1", true, now))

	trusted, err := r.ListTrusted(ctx)
	require.NoError(t, err)
	require.Len(t, trusted, 1)
	assert.Equal(t, "dev-1", trusted[0].ID)
	require.NotNil(t, trusted[0].ApprovedAt)

	require.NoError(t, r.SetTrusted(ctx, "dev-1", false, now))

	trusted, err = r.ListTrusted(ctx)
	require.NoError(t, err)
	assert.Empty(t, trusted)

	got, err := r.GetByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got.ApprovedAt)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetTrusted_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	err := r.SetTrusted(context.Background(), "missing", true, time.Now().UTC())
	require.ErrorIs(t, err, common.ErrNotFound)
}
