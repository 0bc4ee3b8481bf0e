// Package cryptox provides the low-level cryptographic primitives used by
// the key vault: argon2id key derivation, AES-GCM payload encryption, and
// NaCl box key wrapping for per-device content-key distribution.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

// KeySize is the symmetric key length in bytes (AES-256).
const KeySize = 32

var ErrDecryptFailed = errors.New("decrypt failed")
var ErrUnwrapFailed = errors.New("unwrap failed")

// MakeVerifier returns a one-way fingerprint of the given key, safe to store
// locally to check a key candidate without storing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveKey derives a 32-byte key-wrapping secret from an account password
// and salt using argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argonID(password, salt)
}

// Encrypt seals plaintext with AES-GCM under key. A fresh random nonce is
// generated internally for each call; callers can never supply one, which
// structurally rules out nonce reuse for a given key.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens an AES-GCM ciphertext produced by Encrypt. An authentication
// failure returns ErrDecryptFailed.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and encrypts it with Encrypt.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return Encrypt(plaintext, key)
}

// DecryptJSON decrypts a ciphertext produced by EncryptJSON and unmarshals
// the plaintext into v.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Decrypt(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// KeyPair is a NaCl box key pair used to receive wrapped content keys.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair produces a fresh curve25519 box key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub[:], Private: priv[:]}, nil
}

// WrapKey seals a symmetric key to the holder of recipientPublic using an
// anonymous box (sealed-box construction, ephemeral sender key).
func WrapKey(key, recipientPublic []byte) ([]byte, error) {
	pub, err := toKey(recipientPublic)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, key, pub, rand.Reader)
}

// UnwrapKey opens a sealed box produced by WrapKey using the recipient's
// key pair. Returns ErrUnwrapFailed when the payload was not sealed to this
// key pair or is corrupted.
func UnwrapKey(wrapped, recipientPublic, recipientPrivate []byte) ([]byte, error) {
	pub, err := toKey(recipientPublic)
	if err != nil {
		return nil, err
	}
	priv, err := toKey(recipientPrivate)
	if err != nil {
		return nil, err
	}
	key, ok := box.OpenAnonymous(nil, wrapped, pub, priv)
	if !ok {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func toKey(b []byte) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, errors.New("key must be 32 bytes")
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}
