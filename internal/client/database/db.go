// Package database opens the local SQLite database and wires up the
// repositories used by the rest of the client.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kith-app/kith/internal/client/migrations"
	"github.com/kith-app/kith/internal/client/repositories/devices"
	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/client/repositories/records"
	"github.com/kith-app/kith/internal/client/repositories/syncqueue"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles every repository backed by the local database.
type Repositories struct {
	Records  records.Repository
	Queue    syncqueue.Repository
	Devices  devices.Repository
	Metadata metadata.Repository
	DB       *sql.DB
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Init opens (creating if needed) the database at dsn, migrates it, and
// returns the repository set.
func Init(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Queue:    syncqueue.NewSQLiteRepository(db),
		Devices:  devices.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}
