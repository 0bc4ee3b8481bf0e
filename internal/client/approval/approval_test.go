package approval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kith-app/kith/internal/client/database"
	"github.com/kith-app/kith/internal/client/keyvault"
	"github.com/kith-app/kith/internal/client/remote"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/cryptox"
	"github.com/kith-app/kith/internal/logging"
)

// fakeServer is the account's server-side device registry shared between
// the two ends of an enrollment.
type fakeServer struct {
	requests []remote.ApprovalRequest
	wrapped  map[string][]byte
	revoked  map[string]bool
	nextID   int
}

func newFakeServer() *fakeServer {
	return &fakeServer{wrapped: map[string][]byte{}, revoked: map[string]bool{}}
}

func (s *fakeServer) Close() error                   { return nil }
func (s *fakeServer) Ping(ctx context.Context) error { return nil }

func (s *fakeServer) Register(ctx context.Context, username string, salt, verifier []byte) error {
	return nil
}

func (s *fakeServer) GetSalt(ctx context.Context, username string) ([]byte, error) {
	return nil, common.ErrNotFound
}

func (s *fakeServer) Login(ctx context.Context, username string, verifier []byte) error {
	return nil
}

func (s *fakeServer) FetchChangesSince(ctx context.Context, cursor int64) ([]remote.RemoteRecord, int64, error) {
	return nil, cursor, nil
}

func (s *fakeServer) PushChange(ctx context.Context, change remote.Change) (*remote.RemoteMeta, error) {
	return nil, common.ErrInternal
}

func (s *fakeServer) RegisterDevice(ctx context.Context, name, deviceType string, publicKey, masterPublicKey []byte) (string, error) {
	s.nextID++
	id := fmt.Sprintf("device-%d", s.nextID)
	s.requests = append(s.requests, remote.ApprovalRequest{
		DeviceID:   id,
		DeviceName: name,
		DeviceType: deviceType,
		PublicKey:  publicKey,
		CreatedAt:  time.Now().UTC(),
	})
	return id, nil
}

func (s *fakeServer) ListApprovalRequests(ctx context.Context) ([]remote.ApprovalRequest, error) {
	return s.requests, nil
}

func (s *fakeServer) SubmitWrappedKey(ctx context.Context, deviceID string, wrappedKey []byte) error {
	s.wrapped[deviceID] = wrappedKey
	return nil
}

func (s *fakeServer) FetchWrappedKey(ctx context.Context, deviceID string) ([]byte, error) {
	w, ok := s.wrapped[deviceID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return w, nil
}

func (s *fakeServer) RevokeDevice(ctx context.Context, deviceID string) error {
	s.revoked[deviceID] = true
	return nil
}

type device struct {
	repos *database.Repositories
	vault *keyvault.Vault
	flow  *Flow
}

var dbSeq atomic.Int64

func newDevice(t *testing.T, server *fakeServer) *device {
	t.Helper()
	dsn := fmt.Sprintf("file:approval_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	repos, err := database.Init(context.Background(), dsn)
	require.NoError(t, err)
	repos.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = repos.DB.Close() })

	vault := keyvault.New(repos.Metadata)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	flow := New(vault, repos.Devices, repos.Metadata, server, logger)
	return &device{repos: repos, vault: vault, flow: flow}
}

func TestEnrollment_NewDeviceGainsDecryption(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()

	// device A holds the account: full key material including content key
	devA := newDevice(t, server)
	require.NoError(t, devA.vault.Initialize(ctx, []byte("correct horse")))

	// a note A encrypted before B existed
	cipher, nonce, err := devA.vault.EncryptPayload([]byte(`{"title":"t","body":"early"}`))
	require.NoError(t, err)

	// device B joins: key pairs but no content key yet
	devB := newDevice(t, server)
	require.NoError(t, devB.vault.InitializeJoining(ctx, []byte("correct horse")))
	require.False(t, devB.vault.HasContentKey())

	deviceID, err := devB.flow.BeginApproval(ctx, "laptop", "desktop")
	require.NoError(t, err)

	// before approval, completion reports nothing to fetch
	require.ErrorIs(t, devB.flow.CompleteApproval(ctx), common.ErrNotFound)

	// A sees the request and approves with the account password
	requests, err := devA.flow.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "laptop", requests[0].DeviceName)

	require.NoError(t, devA.flow.Approve(ctx, deviceID, []byte("correct horse")))

	// B unwraps, and only then becomes trusted
	require.NoError(t, devB.flow.CompleteApproval(ctx))
	assert.True(t, devB.vault.HasContentKey())

	dev, err := devB.repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, dev.Trusted)
	require.NotNil(t, dev.ApprovedAt)

	// B can now read the note A encrypted before B was approved
	plaintext, err := devB.vault.DecryptPayload(cipher, nonce)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","body":"early"}`, string(plaintext))
}

func TestApprove_WrongPasswordReleasesNothing(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()

	devA := newDevice(t, server)
	require.NoError(t, devA.vault.Initialize(ctx, []byte("correct horse")))

	devB := newDevice(t, server)
	require.NoError(t, devB.vault.InitializeJoining(ctx, []byte("other pass")))
	deviceID, err := devB.flow.BeginApproval(ctx, "phone", "mobile")
	require.NoError(t, err)

	err = devA.flow.Approve(ctx, deviceID, []byte("battery staple"))
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	// no key material left the vault
	assert.Empty(t, server.wrapped)
	require.ErrorIs(t, devB.flow.CompleteApproval(ctx), common.ErrNotFound)
	assert.False(t, devB.vault.HasContentKey())
}

func TestApprove_UnknownDevice(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()

	devA := newDevice(t, server)
	require.NoError(t, devA.vault.Initialize(ctx, []byte("correct horse")))

	err := devA.flow.Approve(ctx, "device-missing", []byte("correct horse"))
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, server.wrapped)
}

func TestCompleteApproval_WrongRecipientStaysUntrusted(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()

	devB := newDevice(t, server)
	require.NoError(t, devB.vault.InitializeJoining(ctx, []byte("pass")))
	deviceID, err := devB.flow.BeginApproval(ctx, "tablet", "mobile")
	require.NoError(t, err)

	// a key wrapped for somebody else's public key lands on the server
	stranger, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	wrapped, err := cryptox.WrapKey(make([]byte, cryptox.KeySize), stranger.Public)
	require.NoError(t, err)
	server.wrapped[deviceID] = wrapped

	err = devB.flow.CompleteApproval(ctx)
	require.ErrorIs(t, err, common.ErrCrypto)

	assert.False(t, devB.vault.HasContentKey())
	dev, err := devB.repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)
	assert.False(t, dev.Trusted)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()

	devA := newDevice(t, server)
	require.NoError(t, devA.vault.Initialize(ctx, []byte("correct horse")))

	devB := newDevice(t, server)
	require.NoError(t, devB.vault.InitializeJoining(ctx, []byte("correct horse")))
	deviceID, err := devB.flow.BeginApproval(ctx, "laptop", "desktop")
	require.NoError(t, err)
	require.NoError(t, devA.flow.Approve(ctx, deviceID, []byte("correct horse")))
	require.NoError(t, devB.flow.CompleteApproval(ctx))

	require.NoError(t, devA.flow.Revoke(ctx, deviceID))
	assert.True(t, server.revoked[deviceID])

	trusted, err := devA.repos.Devices.ListTrusted(ctx)
	require.NoError(t, err)
	for _, d := range trusted {
		assert.NotEqual(t, deviceID, d.ID)
	}
}
