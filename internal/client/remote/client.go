// Package remote is the network boundary of the client. The Client
// interface is what the sync engine and approval flow program against; the
// HTTP implementation translates between the server's snake_case wire
// objects and the canonical local models in one place.
package remote

import (
	"context"
	"time"

	"github.com/kith-app/kith/internal/client/models"
)

// RemoteRecord is a record as the server sees it. Confidential kinds travel
// as ciphertext plus the per-device wrapped content keys current at
// encryption time; everything else travels as plaintext JSON.
type RemoteRecord struct {
	ID            string
	Kind          models.Kind
	Payload       []byte
	PayloadCipher []byte
	Nonce         []byte
	Version       int64
	UpdatedAt     time.Time
	Deleted       bool
}

// RemoteMeta is the server's acknowledgment of a pushed change.
type RemoteMeta struct {
	Version   int64
	UpdatedAt time.Time
}

// Change is one mutation replayed against the server.
type Change struct {
	Operation models.Operation
	Record    RemoteRecord
}

// ApprovalRequest is a pending device enrollment visible to trusted devices.
type ApprovalRequest struct {
	DeviceID   string
	DeviceName string
	DeviceType string
	PublicKey  []byte
	CreatedAt  time.Time
}

// Client is the remote collaborator consumed by the sync engine, auth
// service, and device approval flow.
type Client interface {
	// Close releases underlying transport resources.
	Close() error

	// Register creates a new account with the given login salt and verifier.
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error

	// GetSalt fetches the login salt for a username.
	GetSalt(ctx context.Context, username string) ([]byte, error)

	// Login authenticates and stores the issued token pair in the session.
	Login(ctx context.Context, username string, verifier []byte) error

	// Ping checks server liveness.
	Ping(ctx context.Context) error

	// FetchChangesSince returns remote records changed after cursor plus the
	// next cursor value.
	FetchChangesSince(ctx context.Context, cursor int64) ([]RemoteRecord, int64, error)

	// PushChange replays one mutation. The returned meta carries the
	// server-assigned version used as the new sync baseline.
	PushChange(ctx context.Context, change Change) (*RemoteMeta, error)

	// RegisterDevice announces this device's public keys and returns the
	// server-assigned device id.
	RegisterDevice(ctx context.Context, name, deviceType string, publicKey, masterPublicKey []byte) (string, error)

	// ListApprovalRequests returns devices awaiting approval.
	ListApprovalRequests(ctx context.Context) ([]ApprovalRequest, error)

	// SubmitWrappedKey posts a content key wrapped for the given device.
	SubmitWrappedKey(ctx context.Context, deviceID string, wrappedKey []byte) error

	// FetchWrappedKey retrieves the wrapped content key posted for this
	// device, or common.ErrNotFound while approval is still pending.
	FetchWrappedKey(ctx context.Context, deviceID string) ([]byte, error)

	// RevokeDevice withdraws trust from a device account-wide.
	RevokeDevice(ctx context.Context, deviceID string) error
}
