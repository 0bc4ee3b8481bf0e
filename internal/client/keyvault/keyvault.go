// Package keyvault owns the local device's key material: the device and
// master key pairs, the account content key, and the recovery key set. All
// private halves are persisted only in encrypted form, keyed by a secret
// derived from the account password; plaintext keys live in process memory
// for the lifetime of an unlocked vault and are never written to disk.
package keyvault

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/cryptox"
)

const saltSize = 32

// Unlocked holds the decrypted key material of an open vault.
type Unlocked struct {
	DevicePublic  []byte
	devicePrivate []byte
	MasterPublic  []byte
	masterPrivate []byte
	contentKey    []byte
}

// Vault manages key material through the metadata repository. It is safe
// for concurrent use.
type Vault struct {
	meta metadata.Repository

	mu       sync.Mutex
	unlocked *Unlocked
}

// New returns a Vault backed by the given metadata repository.
func New(meta metadata.Repository) *Vault {
	return &Vault{meta: meta}
}

// Initialize performs first-launch registration on this device: it derives a
// key-wrapping secret from password, generates fresh device and master key
// pairs plus the account content key, and persists everything with the
// private halves AES-GCM encrypted under the derived secret. The vault is
// left unlocked. Calling Initialize on an already provisioned vault is an
// error.
func (v *Vault) Initialize(ctx context.Context, password []byte) error {
	existing, err := v.meta.Get(ctx, metadata.KeyDevicePrivateKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("vault already initialized: %w", common.ErrInternal)
	}

	salt := common.GenerateRandByteArray(saltSize)
	kek := cryptox.DeriveKey(password, salt)
	defer common.WipeByteArray(kek)

	deviceKP, err := cryptox.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("%w: device key pair: %v", common.ErrCrypto, err)
	}
	masterKP, err := cryptox.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("%w: master key pair: %v", common.ErrCrypto, err)
	}
	contentKey := common.GenerateRandByteArray(cryptox.KeySize)

	wrappedContent, err := cryptox.WrapKey(contentKey, deviceKP.Public)
	if err != nil {
		return fmt.Errorf("%w: wrap content key: %v", common.ErrCrypto, err)
	}

	devicePrivBlob, err := sealPrivateKey(deviceKP.Private, kek)
	if err != nil {
		return err
	}
	masterPrivBlob, err := sealPrivateKey(masterKP.Private, kek)
	if err != nil {
		return err
	}

	entries := map[string][]byte{
		metadata.KeySalt:              salt,
		metadata.KeyVerifier:          cryptox.MakeVerifier(kek),
		metadata.KeyDevicePublicKey:   deviceKP.Public,
		metadata.KeyDevicePrivateKey:  devicePrivBlob,
		metadata.KeyMasterPublicKey:   masterKP.Public,
		metadata.KeyMasterPrivateKey:  masterPrivBlob,
		metadata.KeyWrappedContentKey: wrappedContent,
	}
	for key, value := range entries {
		if err := v.meta.Set(ctx, key, value); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.unlocked = &Unlocked{
		DevicePublic:  deviceKP.Public,
		devicePrivate: deviceKP.Private,
		MasterPublic:  masterKP.Public,
		masterPrivate: masterKP.Private,
		contentKey:    contentKey,
	}
	v.mu.Unlock()
	return nil
}

// InitializeJoining provisions key material for a device joining an existing
// account: device and master-wrapping secrets are created, but no content
// key exists yet; it arrives later via the approval flow.
func (v *Vault) InitializeJoining(ctx context.Context, password []byte) error {
	existing, err := v.meta.Get(ctx, metadata.KeyDevicePrivateKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("vault already initialized: %w", common.ErrInternal)
	}

	salt := common.GenerateRandByteArray(saltSize)
	kek := cryptox.DeriveKey(password, salt)
	defer common.WipeByteArray(kek)

	deviceKP, err := cryptox.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("%w: device key pair: %v", common.ErrCrypto, err)
	}

	devicePrivBlob, err := sealPrivateKey(deviceKP.Private, kek)
	if err != nil {
		return err
	}

	entries := map[string][]byte{
		metadata.KeySalt:             salt,
		metadata.KeyVerifier:         cryptox.MakeVerifier(kek),
		metadata.KeyDevicePublicKey:  deviceKP.Public,
		metadata.KeyDevicePrivateKey: devicePrivBlob,
	}
	for key, value := range entries {
		if err := v.meta.Set(ctx, key, value); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.unlocked = &Unlocked{
		DevicePublic:  deviceKP.Public,
		devicePrivate: deviceKP.Private,
	}
	v.mu.Unlock()
	return nil
}

// Unlock re-derives the key-wrapping secret from password and decrypts the
// stored private keys. Returns common.ErrNoKeyMaterial when registration
// never completed on this device and common.ErrInvalidCredentials on a
// password mismatch.
func (v *Vault) Unlock(ctx context.Context, password []byte) (*Unlocked, error) {
	salt, err := v.meta.Get(ctx, metadata.KeySalt)
	if err != nil {
		return nil, err
	}
	devicePrivBlob, err := v.meta.Get(ctx, metadata.KeyDevicePrivateKey)
	if err != nil {
		return nil, err
	}
	if salt == nil || devicePrivBlob == nil {
		return nil, common.ErrNoKeyMaterial
	}

	kek := cryptox.DeriveKey(password, salt)
	defer common.WipeByteArray(kek)

	verifier, err := v.meta.Get(ctx, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(kek)) == 0 {
		return nil, common.ErrInvalidCredentials
	}

	u := &Unlocked{}

	u.devicePrivate, err = openPrivateKey(devicePrivBlob, kek)
	if err != nil {
		return nil, common.ErrInvalidCredentials
	}
	u.DevicePublic, err = v.meta.Get(ctx, metadata.KeyDevicePublicKey)
	if err != nil {
		return nil, err
	}

	if masterBlob, err := v.meta.Get(ctx, metadata.KeyMasterPrivateKey); err != nil {
		return nil, err
	} else if masterBlob != nil {
		u.masterPrivate, err = openPrivateKey(masterBlob, kek)
		if err != nil {
			return nil, common.ErrInvalidCredentials
		}
		u.MasterPublic, err = v.meta.Get(ctx, metadata.KeyMasterPublicKey)
		if err != nil {
			return nil, err
		}
	}

	if wrapped, err := v.meta.Get(ctx, metadata.KeyWrappedContentKey); err != nil {
		return nil, err
	} else if wrapped != nil {
		u.contentKey, err = cryptox.UnwrapKey(wrapped, u.DevicePublic, u.devicePrivate)
		if err != nil {
			return nil, fmt.Errorf("%w: unwrap content key: %v", common.ErrCrypto, err)
		}
	}

	v.mu.Lock()
	v.unlocked = u
	v.mu.Unlock()
	return u, nil
}

// Lock wipes the in-memory key material. The next use requires Unlock.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unlocked == nil {
		return
	}
	common.WipeByteArray(v.unlocked.devicePrivate)
	common.WipeByteArray(v.unlocked.masterPrivate)
	common.WipeByteArray(v.unlocked.contentKey)
	v.unlocked = nil
}

// HasContentKey reports whether the unlocked vault holds the account
// content key. A joining device does not until approval completes.
func (v *Vault) HasContentKey() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlocked != nil && v.unlocked.contentKey != nil
}

// EncryptPayload seals plaintext under the account content key with a fresh
// internally generated nonce.
func (v *Vault) EncryptPayload(plaintext []byte) (ciphertext, nonce []byte, err error) {
	key, err := v.currentContentKey()
	if err != nil {
		return nil, nil, err
	}
	ciphertext, nonce, err = cryptox.Encrypt(plaintext, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return ciphertext, nonce, nil
}

// DecryptPayload opens a ciphertext sealed with EncryptPayload. Failures are
// terminal crypto errors, never retried.
func (v *Vault) DecryptPayload(ciphertext, nonce []byte) ([]byte, error) {
	key, err := v.currentContentKey()
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptox.Decrypt(ciphertext, nonce, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return plaintext, nil
}

// WrapContentKeyFor seals the account content key to the given recipient
// device public key. Requires an unlocked vault holding the content key.
func (v *Vault) WrapContentKeyFor(recipientPublicKey []byte) ([]byte, error) {
	key, err := v.currentContentKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := cryptox.WrapKey(key, recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return wrapped, nil
}

// AdoptWrappedContentKey unwraps a content key sealed to this device and
// persists the wrapped blob, completing key distribution on a newly
// approved device. The unwrap is the proof of approval: failure means the
// payload was not sealed to this device's key pair.
func (v *Vault) AdoptWrappedContentKey(ctx context.Context, wrapped []byte) error {
	v.mu.Lock()
	u := v.unlocked
	v.mu.Unlock()
	if u == nil {
		return common.ErrNoKeyMaterial
	}

	contentKey, err := cryptox.UnwrapKey(wrapped, u.DevicePublic, u.devicePrivate)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	if err := v.meta.Set(ctx, metadata.KeyWrappedContentKey, wrapped); err != nil {
		return err
	}

	v.mu.Lock()
	v.unlocked.contentKey = contentKey
	v.mu.Unlock()
	return nil
}

// DevicePublicKey returns the stored device public key without unlocking.
func (v *Vault) DevicePublicKey(ctx context.Context) ([]byte, error) {
	pub, err := v.meta.Get(ctx, metadata.KeyDevicePublicKey)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, common.ErrNoKeyMaterial
	}
	return pub, nil
}

func (v *Vault) currentContentKey() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unlocked == nil {
		return nil, common.ErrNoKeyMaterial
	}
	if v.unlocked.contentKey == nil {
		return nil, common.ErrNoKeyMaterial
	}
	return v.unlocked.contentKey, nil
}

// sealPrivateKey stores a private key as nonce||ciphertext under the KDF
// secret.
func sealPrivateKey(priv, kek []byte) ([]byte, error) {
	ciphertext, nonce, err := cryptox.Encrypt(priv, kek)
	if err != nil {
		return nil, fmt.Errorf("%w: seal private key: %v", common.ErrCrypto, err)
	}
	return append(nonce, ciphertext...), nil
}

func openPrivateKey(blob, kek []byte) ([]byte, error) {
	if len(blob) <= cryptox.NonceSize {
		return nil, fmt.Errorf("%w: malformed private key blob", common.ErrCrypto)
	}
	nonce, ciphertext := blob[:cryptox.NonceSize], blob[cryptox.NonceSize:]
	priv, err := cryptox.Decrypt(ciphertext, nonce, kek)
	if err != nil {
		return nil, fmt.Errorf("%w: open private key: %v", common.ErrCrypto, err)
	}
	return priv, nil
}

func hashPhrase(s string) []byte {
	h := sha256.Sum256([]byte(normalizePhrase(s)))
	return h[:]
}
