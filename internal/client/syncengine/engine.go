// Package syncengine drains the mutation queue against the server and folds
// remote changes back into the local store. It runs as a single background
// task driven by a timer and an explicit trigger; all network I/O of the
// record path lives here.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kith-app/kith/internal/client/keyvault"
	"github.com/kith-app/kith/internal/client/localstore"
	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/client/remote"
	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/client/repositories/syncqueue"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/logging"
)

// State is the engine's position in its cycle.
type State int32

const (
	StateOffline State = iota
	StateIdle
	StatePulling
	StateReconciling
	StatePushing
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateReconciling:
		return "reconciling"
	case StatePushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// Config bounds the engine's work per cycle.
type Config struct {
	// BatchSize caps queue entries processed per push pass.
	BatchSize int
	// MaxAttempts is the per-entry retry cap before the record is parked
	// in conflict instead of retried forever.
	MaxAttempts int
	// TickInterval is the cadence of unprompted sync cycles.
	TickInterval time.Duration
	// TombstoneGrace is how long acknowledged tombstones linger before
	// physical removal.
	TombstoneGrace time.Duration
}

// DefaultConfig returns the tuning used when the caller supplies zero values.
func DefaultConfig() Config {
	return Config{
		BatchSize:      25,
		MaxAttempts:    5,
		TickInterval:   30 * time.Second,
		TombstoneGrace: 24 * time.Hour,
	}
}

// Engine is the sole mover of records between pending and synced/conflict.
type Engine struct {
	view    *localstore.SyncView
	queue   syncqueue.Repository
	meta    metadata.Repository
	remote  remote.Client
	vault   *keyvault.Vault
	logger  logging.Logger
	cfg     Config
	state   atomic.Int32
	trigger chan struct{}
}

// New wires an engine. Zero fields in cfg fall back to DefaultConfig.
func New(view *localstore.SyncView, queue syncqueue.Repository, meta metadata.Repository,
	rc remote.Client, vault *keyvault.Vault, logger logging.Logger, cfg Config) *Engine {

	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.TombstoneGrace <= 0 {
		cfg.TombstoneGrace = def.TombstoneGrace
	}

	e := &Engine{
		view:    view,
		queue:   queue,
		meta:    meta,
		remote:  rc,
		vault:   vault,
		logger:  logger,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
	e.state.Store(int32(StateOffline))
	return e
}

// State reports the engine's current position.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Trigger requests a sync cycle outside the timer cadence. Non-blocking; a
// cycle already requested absorbs the call.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drives the engine until ctx is cancelled. Cancellation takes effect
// at batch boundaries; an in-flight record finishes or nacks, never both.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.trigger:
		}

		if err := e.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn(ctx, "sync cycle aborted", "error", err, "state", e.State().String())
		}
	}
}

// Cycle runs one pull, reconcile, push pass. When offline it first probes
// the server and stays offline on failure, leaving the queue intact.
func (e *Engine) Cycle(ctx context.Context) error {
	if e.State() == StateOffline {
		if err := e.remote.Ping(ctx); err != nil {
			return nil
		}
		e.setState(StateIdle)
		e.logger.Info(ctx, "connectivity regained")
	}

	if err := e.pull(ctx); err != nil {
		return e.fail(err)
	}
	if err := e.push(ctx); err != nil {
		return e.fail(err)
	}

	if _, err := e.view.PurgeTombstones(ctx, e.cfg.TombstoneGrace); err != nil {
		e.logger.Warn(ctx, "tombstone purge failed", "error", err)
	}

	e.setState(StateIdle)
	return nil
}

// fail maps a cycle error to the resulting state: transport trouble means
// offline until the next probe succeeds, anything else returns to idle.
func (e *Engine) fail(err error) error {
	if errors.Is(err, common.ErrUnavailable) || errors.Is(err, common.ErrUnauthorized) {
		e.setState(StateOffline)
	} else {
		e.setState(StateIdle)
	}
	return err
}

func (e *Engine) pull(ctx context.Context) error {
	e.setState(StatePulling)

	cursor, err := e.loadCursor(ctx)
	if err != nil {
		return err
	}

	remotes, next, err := e.remote.FetchChangesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("fetch changes: %w", err)
	}

	e.setState(StateReconciling)
	for i := range remotes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.reconcile(ctx, &remotes[i]); err != nil {
			return err
		}
	}

	if next != cursor {
		if err := e.saveCursor(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// reconcile folds one remote record into local state.
//
// A record with no local counterpart is inserted. A synced local record is
// overwritten when the remote side moved past it. A pending local record
// defers to the outstanding local edit, except when both sides diverged
// from the same baseline on a confidential kind, which parks the record in
// conflict rather than silently losing either side.
func (e *Engine) reconcile(ctx context.Context, rr *remote.RemoteRecord) error {
	local, err := e.view.Get(ctx, rr.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if rr.Deleted {
			return nil
		}
		return e.applyRemote(ctx, rr, nil)
	case err != nil:
		return err
	}

	switch local.SyncStatus {
	case models.StatusConflict:
		// parked for manual resolution, nothing moves it but Resolve
		return nil

	case models.StatusSynced:
		if rr.Version <= local.BaseVersion {
			return nil
		}
		return e.applyRemote(ctx, rr, local)

	case models.StatusPending:
		if rr.Version <= local.BaseVersion {
			// the remote change is the baseline we already edited from
			return nil
		}
		return e.diverged(ctx, local, rr)
	}
	return nil
}

// diverged handles a remote change racing an unpushed local edit on the
// same record. Confidential kinds always conflict; everything else is
// last-write-wins by timestamp.
func (e *Engine) diverged(ctx context.Context, local *models.Record, rr *remote.RemoteRecord) error {
	if local.Kind.Confidential() {
		return e.parkConflict(ctx, local.ID, rr)
	}

	if rr.UpdatedAt.After(local.UpdatedAt) {
		// remote edit is newer; applying it also drops the stale local
		// queue entry in the same transaction
		return e.applyRemote(ctx, rr, local)
	}

	// local edit is newer; it stays pending and will be pushed over the
	// remote change this cycle
	return nil
}

// applyRemote installs a remote record locally with status synced,
// decrypting confidential payloads. basis is the local snapshot the
// decision was made on; a row changed underneath it leaves the local edit
// in place. A payload that cannot be decrypted is installed as a conflict
// so the batch keeps moving.
func (e *Engine) applyRemote(ctx context.Context, rr *remote.RemoteRecord, basis *models.Record) error {
	rec := &models.Record{
		ID:            rr.ID,
		Kind:          rr.Kind,
		Payload:       rr.Payload,
		PayloadCipher: rr.PayloadCipher,
		Nonce:         rr.Nonce,
		BaseVersion:   rr.Version,
		UpdatedAt:     rr.UpdatedAt,
	}
	if rr.Deleted {
		deletedAt := rr.UpdatedAt
		rec.DeletedAt = &deletedAt
	}

	if rr.Kind.Confidential() && !rr.Deleted {
		plaintext, err := e.vault.DecryptPayload(rr.PayloadCipher, rr.Nonce)
		switch {
		case errors.Is(err, common.ErrNoKeyMaterial):
			// vault locked or key not yet distributed, retry next cycle
			return nil
		case err != nil:
			e.logger.Error(ctx, "remote payload undecryptable", "record_id", rr.ID, "error", err)
			applied, applyErr := e.view.ApplyRemote(ctx, rec, basis)
			if applyErr != nil || !applied {
				return applyErr
			}
			return e.view.MarkConflict(ctx, rr.ID, rr.PayloadCipher)
		}
		rec.Payload = plaintext
	}

	_, err := e.view.ApplyRemote(ctx, rec, basis)
	return err
}

// parkConflict marks a record conflicted, keeping the remote snapshot for
// manual merge, and drops its queue entry.
func (e *Engine) parkConflict(ctx context.Context, id string, rr *remote.RemoteRecord) error {
	snapshot := rr.Payload
	if rr.Kind.Confidential() {
		if plaintext, err := e.vault.DecryptPayload(rr.PayloadCipher, rr.Nonce); err == nil {
			snapshot = plaintext
		} else {
			snapshot = rr.PayloadCipher
		}
	}
	if err := e.view.MarkConflict(ctx, id, snapshot); err != nil {
		return err
	}
	return e.queue.Ack(ctx, id)
}

func (e *Engine) push(ctx context.Context) error {
	e.setState(StatePushing)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := e.queue.DequeueBatch(ctx, e.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		progressed := false
		for i := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			done, err := e.pushOne(ctx, &batch[i])
			if err != nil {
				return err
			}
			if done {
				progressed = true
			}
		}
		if !progressed {
			// everything left is deferred (locked vault, key not yet
			// distributed); let the next cycle retry
			return nil
		}
	}
}

// pushOne replays a single queue entry. The entry is acked only after the
// remote call fully succeeded; retryable failures nack it, and the attempt
// cap converts a persistently failing record to conflict rather than
// stalling the queue. Returns false when the entry was deferred untouched.
func (e *Engine) pushOne(ctx context.Context, entry *models.SyncQueueEntry) (bool, error) {
	if entry.Attempt >= e.cfg.MaxAttempts {
		e.logger.Warn(ctx, "retry cap reached", "record_id", entry.RecordID, "attempts", entry.Attempt)
		if err := e.view.MarkConflict(ctx, entry.RecordID, nil); err != nil {
			return false, err
		}
		return true, e.queue.Ack(ctx, entry.RecordID)
	}

	rec, err := e.view.Get(ctx, entry.RecordID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		// record purged underneath the entry, nothing to replay
		return true, e.queue.Ack(ctx, entry.RecordID)
	case err != nil:
		return false, err
	}

	change := remote.Change{
		Operation: entry.Operation,
		Record: remote.RemoteRecord{
			ID:        rec.ID,
			Kind:      rec.Kind,
			Version:   rec.BaseVersion,
			UpdatedAt: rec.UpdatedAt,
			Deleted:   entry.Operation == models.OpDelete,
		},
	}

	if entry.Operation != models.OpDelete {
		if rec.Kind.Confidential() {
			// encrypted at send time so a key rotated after enqueue is the
			// one that seals the payload
			cipher, nonce, err := e.vault.EncryptPayload(rec.Payload)
			switch {
			case errors.Is(err, common.ErrNoKeyMaterial):
				return false, nil
			case err != nil:
				e.logger.Error(ctx, "payload encryption failed", "record_id", rec.ID, "error", err)
				if markErr := e.view.MarkConflict(ctx, rec.ID, nil); markErr != nil {
					return false, markErr
				}
				return true, e.queue.Ack(ctx, rec.ID)
			}
			change.Record.PayloadCipher = cipher
			change.Record.Nonce = nonce
		} else {
			change.Record.Payload = rec.Payload
		}
	}

	meta, err := e.remote.PushChange(ctx, change)
	switch {
	case err == nil:
		if err := e.view.MarkSynced(ctx, rec.ID, meta.Version); err != nil {
			return false, err
		}
		return true, e.queue.Ack(ctx, rec.ID)

	case errors.Is(err, common.ErrNotFound) && entry.Operation == models.OpDelete:
		// server never saw the record, the tombstone is moot
		if err := e.view.MarkSynced(ctx, rec.ID, rec.BaseVersion); err != nil {
			return false, err
		}
		return true, e.queue.Ack(ctx, rec.ID)

	case errors.Is(err, common.ErrConflict):
		e.logger.Warn(ctx, "push rejected by server", "record_id", rec.ID)
		if markErr := e.view.MarkConflict(ctx, rec.ID, nil); markErr != nil {
			return false, markErr
		}
		return true, e.queue.Ack(ctx, rec.ID)

	case errors.Is(err, common.ErrUnavailable), errors.Is(err, common.ErrUnauthorized):
		if nackErr := e.queue.Nack(ctx, rec.ID, err); nackErr != nil {
			return false, nackErr
		}
		return false, err

	default:
		if nackErr := e.queue.Nack(ctx, rec.ID, err); nackErr != nil {
			return false, nackErr
		}
		updated, getErr := e.queue.Get(ctx, rec.ID)
		if getErr != nil {
			return false, getErr
		}
		if updated.Attempt >= e.cfg.MaxAttempts {
			e.logger.Warn(ctx, "retry cap reached", "record_id", rec.ID, "attempts", updated.Attempt)
			if markErr := e.view.MarkConflict(ctx, rec.ID, nil); markErr != nil {
				return false, markErr
			}
			return true, e.queue.Ack(ctx, rec.ID)
		}
		return true, nil
	}
}

func (e *Engine) loadCursor(ctx context.Context) (int64, error) {
	raw, err := e.meta.Get(ctx, metadata.KeySyncCursor)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt sync cursor %q: %w", raw, common.ErrInternal)
	}
	return cursor, nil
}

func (e *Engine) saveCursor(ctx context.Context, cursor int64) error {
	return e.meta.Set(ctx, metadata.KeySyncCursor, []byte(strconv.FormatInt(cursor, 10)))
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}
