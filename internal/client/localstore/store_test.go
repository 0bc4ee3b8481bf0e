package localstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kith-app/kith/internal/client/database"
	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

// setupStore opens a fresh shared-cache in-memory database: the pool may
// hand out several connections, and they must all see the same data.
func setupStore(t *testing.T) (*Store, *database.Repositories) {
	t.Helper()
	dsn := fmt.Sprintf("file:localstore_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	repos, err := database.Init(context.Background(), dsn)
	require.NoError(t, err)
	repos.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = repos.DB.Close() })
	return New(repos.DB), repos
}

func person(id string) *models.Record {
	return &models.Record{
		ID:      id,
		Kind:    models.KindPerson,
		Payload: []byte(`{"first_name":"Dana"}`),
	}
}

func TestWrite_AssignsIDStampsAndQueues(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.False(t, got.UpdatedAt.IsZero())

	entry, err := repos.Queue.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, entry.Operation)
}

func TestWrite_SecondWriteCoalescesToCreate(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	rec.Payload = []byte(`{"first_name":"Dana","company":"Acme"}`)
	require.NoError(t, s.Write(ctx, rec))

	entry, err := repos.Queue.Get(ctx, rec.ID)
	require.NoError(t, err)
	// the server has never seen this record, so the net op stays create
	assert.Equal(t, models.OpCreate, entry.Operation)

	n, err := repos.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWrite_PreservesBaseVersion(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Sync().MarkSynced(ctx, rec.ID, 5))

	update := person(rec.ID)
	require.NoError(t, s.Write(ctx, update))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.BaseVersion, "local edit keeps the synced baseline")
	assert.Equal(t, models.StatusPending, got.SyncStatus)
}

func TestDelete_TombstoneAndQueue(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Sync().MarkSynced(ctx, rec.ID, 1))
	// drain the create entry as the engine would
	require.NoError(t, repos.Queue.Ack(ctx, rec.ID))

	require.NoError(t, s.Delete(ctx, rec.ID))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, models.StatusPending, got.SyncStatus)

	entry, err := repos.Queue.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, entry.Operation)
}

func TestDelete_UnsyncedCreateCancelsOut(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Delete(ctx, rec.ID))

	// create+delete never reaches the server
	n, err := repos.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// the row goes with it: no pending tombstone may outlive its queue entry
	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	removed, err := s.Sync().PurgeTombstones(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestQuery_FilterAndKindScoping(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	a := person("")
	a.Payload = []byte(`{"first_name":"Ana"}`)
	require.NoError(t, s.Write(ctx, a))

	b := person("")
	b.Payload = []byte(`{"first_name":"Bo"}`)
	require.NoError(t, s.Write(ctx, b))

	note := &models.Record{Kind: models.KindNote, Payload: []byte(`{"title":"x"}`)}
	require.NoError(t, s.Write(ctx, note))

	people, err := s.Query(ctx, models.KindPerson, nil)
	require.NoError(t, err)
	assert.Len(t, people, 2)

	filtered, err := s.Query(ctx, models.KindPerson, func(r models.Record) bool {
		return r.ID == a.ID
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, a.ID, filtered[0].ID)
}

func TestNeedingAttentionAndResolve(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Sync().MarkConflict(ctx, rec.ID, []byte(`{"remote":1}`)))

	attention, err := s.NeedingAttention(ctx)
	require.NoError(t, err)
	require.Len(t, attention, 1)
	assert.Equal(t, rec.ID, attention[0].ID)

	require.NoError(t, s.Resolve(ctx, rec.ID, []byte(`{"merged":1}`)))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.Equal(t, []byte(`{"merged":1}`), got.Payload)
	assert.Nil(t, got.ConflictPayload)

	entry, err := repos.Queue.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestResolve_NonConflictRejected(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))

	err := s.Resolve(ctx, rec.ID, []byte(`{}`))
	require.ErrorIs(t, err, common.ErrInternal)
}

func TestPurgeTombstones_RespectsGraceAndAck(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Sync().MarkSynced(ctx, rec.ID, 1))
	require.NoError(t, repos.Queue.Ack(ctx, rec.ID))
	require.NoError(t, s.Delete(ctx, rec.ID))

	// not yet acknowledged: purge must not touch it
	n, err := s.Sync().PurgeTombstones(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Sync().MarkSynced(ctx, rec.ID, 2))

	// acknowledged but inside the grace period
	n, err = s.Sync().PurgeTombstones(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Sync().PurgeTombstones(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWrite_ConcurrentSameRecordSerialized(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := person(rec.ID)
			_ = s.Write(ctx, r)
		}()
	}
	wg.Wait()

	// still exactly one queue entry for the record
	n, err := repos.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
}

func TestApplyRemote_MatchingBasisInstallsAndDrainsQueue(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))

	basis, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	applied, err := s.Sync().ApplyRemote(ctx, &models.Record{
		ID:          rec.ID,
		Kind:        models.KindPerson,
		Payload:     []byte(`{"first_name":"Remote"}`),
		BaseVersion: 3,
	}, basis)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
	assert.JSONEq(t, `{"first_name":"Remote"}`, string(got.Payload))

	// the local edit the apply superseded is gone from the queue too
	n, err := repos.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyRemote_StaleBasisLeavesLocalWriteIntact(t *testing.T) {
	s, repos := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))
	require.NoError(t, s.Sync().MarkSynced(ctx, rec.ID, 1))
	require.NoError(t, repos.Queue.Ack(ctx, rec.ID))

	basis, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	// a UI write lands after the snapshot was taken
	local := person(rec.ID)
	local.Payload = []byte(`{"first_name":"Edited"}`)
	require.NoError(t, s.Write(ctx, local))

	applied, err := s.Sync().ApplyRemote(ctx, &models.Record{
		ID:          rec.ID,
		Kind:        models.KindPerson,
		Payload:     []byte(`{"first_name":"Remote"}`),
		BaseVersion: 2,
	}, basis)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.JSONEq(t, `{"first_name":"Edited"}`, string(got.Payload))

	entry, err := repos.Queue.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpUpdate, entry.Operation)
}

func TestApplyRemote_NilBasisRequiresAbsentRow(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	rec := person("")
	require.NoError(t, s.Write(ctx, rec))

	applied, err := s.Sync().ApplyRemote(ctx, &models.Record{
		ID:          rec.ID,
		Kind:        models.KindPerson,
		Payload:     []byte(`{"first_name":"Remote"}`),
		BaseVersion: 1,
	}, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
}
