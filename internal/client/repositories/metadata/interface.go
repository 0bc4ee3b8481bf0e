package metadata

import (
	"context"
)

// Keys for well-known metadata entries.
const (
	KeyUsername          = "username"
	KeySalt              = "salt"
	KeyVerifier          = "verifier"
	KeyDeviceID          = "device_id"
	KeyDevicePublicKey   = "device_public_key"
	KeyDevicePrivateKey  = "device_private_key" // AES-GCM blob under the KDF secret
	KeyMasterPublicKey   = "master_public_key"
	KeyMasterPrivateKey  = "master_private_key" // AES-GCM blob under the KDF secret
	KeyWrappedContentKey = "wrapped_content_key"
	KeyRecoveryHashes    = "recovery_hashes"
	KeySyncCursor        = "sync_cursor"
)

// Repository is a small singleton key/value store for the local device's
// auth metadata, wrapped key material, and sync cursor.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
