// Package dbx holds the small database plumbing the repositories share: the
// DBTX interface, satisfied by both *sql.DB and *sql.Tx, lets a repository
// run standalone or inside someone else's transaction, and WithTx gives the
// record/queue pair its atomicity.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql the repositories query through.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit on a nil return, rollback on
// error or panic (the panic is rethrown). Repositories constructed over the
// tx handle see each other's writes, so a record mutation and its queue
// entry land or vanish together.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    if err := records.NewSQLiteRepository(tx).Upsert(ctx, rec); err != nil {
//	        return err
//	    }
//	    return syncqueue.NewSQLiteRepository(tx).Enqueue(ctx, rec.ID, op)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
