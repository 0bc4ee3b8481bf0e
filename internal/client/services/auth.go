// Package services contains application services for the Kith client. This
// file defines the authentication service: registration, online/offline
// login, liveness probe, and housekeeping of local auth metadata.
package services

import (
	"context"
	"fmt"

	"github.com/kith-app/kith/internal/client/keyvault"
	"github.com/kith-app/kith/internal/client/remote"
	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/client/session"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/cryptox"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a new account on the server and provision this
//     device's key material, including the account content key.
//   - RegisterJoining: provision key material for a device joining an
//     existing account; the content key arrives via device approval.
//   - OnlineLogin: authenticate against the server, cache the username for
//     offline use, and unlock the vault.
//   - OfflineLogin: verify the password against local key material only.
//   - Ping: check server liveness.
//   - Logout: lock the vault and drop session tokens. Cached offline data
//     survives so OfflineLogin keeps working.
//   - ClearOfflineData: wipe all locally cached auth and key metadata.
//
// All methods honor context cancellation.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) ([]string, error)
	RegisterJoining(ctx context.Context, username string, password []byte) error
	OnlineLogin(ctx context.Context, username string, password []byte) error
	OfflineLogin(ctx context.Context, username string, password []byte) error
	Ping(ctx context.Context) error
	Logout(ctx context.Context)
	ClearOfflineData(ctx context.Context) error
	Close(ctx context.Context) error
}

const loginSaltSize = 32

type authService struct {
	client remote.Client
	vault  *keyvault.Vault
	meta   metadata.Repository
	sess   *session.Context
}

// NewAuthService constructs an AuthService bound to the given collaborators.
func NewAuthService(client remote.Client, vault *keyvault.Vault, meta metadata.Repository, sess *session.Context) AuthService {
	return &authService{client: client, vault: vault, meta: meta, sess: sess}
}

// Register creates the account on the server and provisions this device as
// the account's first: full key material including the content key and the
// recovery key set. The recovery phrases are returned exactly once; only
// their hashes are kept.
func (a *authService) Register(ctx context.Context, username string, password []byte) ([]string, error) {
	salt := common.GenerateRandByteArray(loginSaltSize)
	loginKey := cryptox.DeriveKey(password, salt)
	verifier := cryptox.MakeVerifier(loginKey)

	if err := a.client.Register(ctx, username, salt, verifier); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	if err := a.vault.Initialize(ctx, password); err != nil {
		return nil, err
	}

	phrases, err := a.vault.GenerateRecoveryKeys(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.meta.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
		return nil, err
	}

	if err := a.client.Login(ctx, username, verifier); err != nil {
		return nil, fmt.Errorf("login after register: %w", err)
	}
	return phrases, nil
}

// RegisterJoining provisions key material for a device joining an existing
// account. The caller follows up with the device approval flow to obtain
// the content key.
func (a *authService) RegisterJoining(ctx context.Context, username string, password []byte) error {
	if err := a.vault.InitializeJoining(ctx, password); err != nil {
		return err
	}
	if err := a.meta.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
		return err
	}
	return a.OnlineLogin(ctx, username, password)
}

// OnlineLogin authenticates against the server and unlocks the vault.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt: %w", err)
	}

	loginKey := cryptox.DeriveKey(password, salt)
	verifier := cryptox.MakeVerifier(loginKey)

	if err := a.client.Login(ctx, username, verifier); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := a.meta.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
		return err
	}

	// a brand new device has no key material yet and reports
	// common.ErrNoKeyMaterial; the session tokens are already stored, so
	// the caller can proceed to the joining flow
	_, err = a.vault.Unlock(ctx, password)
	return err
}

// OfflineLogin verifies the password against local key material only. The
// cached username must match; a device that never completed registration
// reports common.ErrNoKeyMaterial.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) error {
	saved, err := a.meta.Get(ctx, metadata.KeyUsername)
	if err != nil {
		return err
	}
	if saved == nil {
		return common.ErrNoKeyMaterial
	}
	if string(saved) != username {
		return common.ErrInvalidCredentials
	}

	_, err = a.vault.Unlock(ctx, password)
	return err
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Logout locks the vault and drops session tokens.
func (a *authService) Logout(ctx context.Context) {
	a.vault.Lock()
	a.sess.Clear()
}

// ClearOfflineData wipes locally cached auth and key metadata. After this
// the device must re-register or rejoin the account.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	a.vault.Lock()
	a.sess.Clear()
	return a.meta.Clear(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
