// Package localstore is the single source of truth the UI reads and writes.
// Every mutation lands here first (status pending) and is queued for replay;
// nothing in this package ever waits on the network. Sync-status transitions
// other than pending live on SyncView, handed out only to the sync engine,
// which keeps the UI and the network from racing on a record's state.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/client/repositories/records"
	"github.com/kith-app/kith/internal/client/repositories/syncqueue"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/dbx"
)

const lockStripes = 64

// Filter narrows a Query result. A nil Filter matches everything.
type Filter func(models.Record) bool

// Store owns local record state. Safe for concurrent use: mutations are
// serialized per record id, so a UI write and an engine reconciliation for
// the same record cannot interleave.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// New returns a Store over the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Write applies a UI mutation: the record is stamped, persisted with status
// pending, and the matching operation is queued, all in one transaction.
// A record without an ID is assigned one and returned via the argument.
func (s *Store) Write(ctx context.Context, rec *models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.lock(rec.ID)
	defer s.unlock(rec.ID)

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)
		qr := syncqueue.NewSQLiteRepository(tx)

		op := models.OpUpdate
		existing, err := rr.GetByID(ctx, rec.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			op = models.OpCreate
		case err != nil:
			return err
		default:
			// keep the last known server baseline for conflict detection
			rec.BaseVersion = existing.BaseVersion
		}

		rec.UpdatedAt = s.now()
		rec.SyncStatus = models.StatusPending
		rec.DeletedAt = nil

		if err := rr.Upsert(ctx, rec); err != nil {
			return err
		}
		return qr.Enqueue(ctx, rec.ID, op)
	})
}

// Get returns a record by id. Reads never touch the network.
func (s *Store) Get(ctx context.Context, id string) (*models.Record, error) {
	return records.NewSQLiteRepository(s.db).GetByID(ctx, id)
}

// Query returns all live records of a kind matching filter.
func (s *Store) Query(ctx context.Context, kind models.Kind, filter Filter) ([]models.Record, error) {
	all, err := records.NewSQLiteRepository(s.db).ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return all, nil
	}
	matched := make([]models.Record, 0, len(all))
	for _, rec := range all {
		if filter(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Delete turns a replicated record into a pending tombstone and queues the
// delete; the row stays until the server acknowledges and the grace period
// elapses. A record the server has never seen is removed outright.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.lock(id)
	defer s.unlock(id)

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)
		qr := syncqueue.NewSQLiteRepository(tx)

		// A record whose create is still queued never reached the server.
		// Deleting it cancels the create and drops the row outright, so no
		// orphaned pending tombstone survives the coalesced queue entry.
		entry, err := qr.Get(ctx, id)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if entry != nil && entry.Operation == models.OpCreate {
			if err := rr.HardDelete(ctx, id); err != nil {
				return err
			}
			return qr.Ack(ctx, id)
		}

		if err := rr.SoftDelete(ctx, id, s.now()); err != nil {
			return err
		}
		return qr.Enqueue(ctx, id, models.OpDelete)
	})
}

// NeedingAttention returns records in conflict, available to the UI at any
// time without stopping the engine.
func (s *Store) NeedingAttention(ctx context.Context) ([]models.Record, error) {
	return records.NewSQLiteRepository(s.db).ListByStatus(ctx, models.StatusConflict)
}

// Resolve accepts the caller's manual merge of a conflicted record: the
// merged payload becomes a fresh pending mutation.
func (s *Store) Resolve(ctx context.Context, id string, mergedPayload []byte) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.SyncStatus != models.StatusConflict {
		return fmt.Errorf("record %s is not in conflict: %w", id, common.ErrInternal)
	}
	rec.Payload = mergedPayload
	rec.ConflictPayload = nil
	return s.Write(ctx, rec)
}

// Sync returns the engine-facing view. Nothing else may transition a record
// out of pending.
func (s *Store) Sync() *SyncView {
	return &SyncView{s: s}
}

// SyncView exposes the transitions reserved for the sync engine.
type SyncView struct {
	s *Store
}

// ApplyRemote installs a remote record locally with status synced and drops
// any queued local operation for it, under the record's write lock. The
// engine decides against a snapshot of the local row (basis, nil when the
// row was absent); a UI write landing after that snapshot changes the row,
// so the apply is skipped and the local edit keeps its queue entry. Returns
// whether the remote record was installed.
func (v *SyncView) ApplyRemote(ctx context.Context, rec *models.Record, basis *models.Record) (bool, error) {
	v.s.lock(rec.ID)
	defer v.s.unlock(rec.ID)

	applied := false
	err := dbx.WithTx(ctx, v.s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)

		current, err := rr.GetByID(ctx, rec.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if basis != nil {
				return nil
			}
		case err != nil:
			return err
		default:
			if basis == nil || !current.UpdatedAt.Equal(basis.UpdatedAt) ||
				current.SyncStatus != basis.SyncStatus {
				return nil
			}
		}

		rec.SyncStatus = models.StatusSynced
		if err := rr.Upsert(ctx, rec); err != nil {
			return err
		}
		applied = true
		return syncqueue.NewSQLiteRepository(tx).Ack(ctx, rec.ID)
	})
	return applied, err
}

// MarkSynced records a confirmed round-trip with the new server baseline.
func (v *SyncView) MarkSynced(ctx context.Context, id string, baseVersion int64) error {
	v.s.lock(id)
	defer v.s.unlock(id)
	return records.NewSQLiteRepository(v.s.db).SetSynced(ctx, id, baseVersion)
}

// MarkConflict parks a record for manual resolution, keeping the remote
// snapshot alongside the local payload.
func (v *SyncView) MarkConflict(ctx context.Context, id string, remotePayload []byte) error {
	v.s.lock(id)
	defer v.s.unlock(id)
	return records.NewSQLiteRepository(v.s.db).SetConflict(ctx, id, remotePayload)
}

// PurgeTombstones physically removes acknowledged tombstones older than the
// grace period.
func (v *SyncView) PurgeTombstones(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := v.s.now().Add(-grace)
	return records.NewSQLiteRepository(v.s.db).PurgeDeletedBefore(ctx, cutoff)
}

// Get returns a record including tombstones, bypassing no locks: reads are
// consistent snapshots.
func (v *SyncView) Get(ctx context.Context, id string) (*models.Record, error) {
	return v.s.Get(ctx, id)
}

func (s *Store) lock(id string) {
	s.locks[stripe(id)].Lock()
}

func (s *Store) unlock(id string) {
	s.locks[stripe(id)].Unlock()
}

func stripe(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32() % lockStripes
}
