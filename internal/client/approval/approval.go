// Package approval implements device enrollment: a new device announces its
// public key, an already trusted device releases the account content key
// wrapped for it, and the new device proves receipt by unwrapping. Trust is
// granted only after that local proof, never on a transport acknowledgment.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kith-app/kith/internal/client/keyvault"
	"github.com/kith-app/kith/internal/client/models"
	"github.com/kith-app/kith/internal/client/remote"
	"github.com/kith-app/kith/internal/client/repositories/devices"
	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/common"
	"github.com/kith-app/kith/internal/logging"
)

// Flow drives both sides of device enrollment.
type Flow struct {
	vault   *keyvault.Vault
	devices devices.Repository
	meta    metadata.Repository
	remote  remote.Client
	logger  logging.Logger
	now     func() time.Time
}

// New wires an approval flow.
func New(vault *keyvault.Vault, dr devices.Repository, meta metadata.Repository,
	rc remote.Client, logger logging.Logger) *Flow {
	return &Flow{
		vault:   vault,
		devices: dr,
		meta:    meta,
		remote:  rc,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BeginApproval announces this device to the account. It registers the
// device's public keys with the server and records the assigned id; the
// device stays untrusted until CompleteApproval succeeds.
func (f *Flow) BeginApproval(ctx context.Context, name, deviceType string) (string, error) {
	devicePub, err := f.vault.DevicePublicKey(ctx)
	if err != nil {
		return "", err
	}
	masterPub, err := f.meta.Get(ctx, metadata.KeyMasterPublicKey)
	if err != nil {
		return "", err
	}

	deviceID, err := f.remote.RegisterDevice(ctx, name, deviceType, devicePub, masterPub)
	if err != nil {
		return "", fmt.Errorf("register device: %w", err)
	}

	if err := f.meta.Set(ctx, metadata.KeyDeviceID, []byte(deviceID)); err != nil {
		return "", err
	}

	err = f.devices.Save(ctx, &models.Device{
		ID:        deviceID,
		Name:      name,
		Type:      deviceType,
		PublicKey: devicePub,
		Trusted:   false,
	})
	if err != nil {
		return "", err
	}

	f.logger.Info(ctx, "device enrollment requested", "device_id", deviceID, "name", name)
	return deviceID, nil
}

// PendingRequests lists devices awaiting approval, for the trusted side.
func (f *Flow) PendingRequests(ctx context.Context) ([]remote.ApprovalRequest, error) {
	return f.remote.ListApprovalRequests(ctx)
}

// Approve releases the content key to a requesting device. The caller must
// re-enter the account password: releasing key material demands proof of
// the password now, not merely a live session. A wrong password aborts
// before any key material is derived for the recipient.
func (f *Flow) Approve(ctx context.Context, deviceID string, password []byte) error {
	if _, err := f.vault.Unlock(ctx, password); err != nil {
		return err
	}

	requests, err := f.remote.ListApprovalRequests(ctx)
	if err != nil {
		return err
	}
	var req *remote.ApprovalRequest
	for i := range requests {
		if requests[i].DeviceID == deviceID {
			req = &requests[i]
			break
		}
	}
	if req == nil {
		return fmt.Errorf("no pending request for device %s: %w", deviceID, common.ErrNotFound)
	}

	wrapped, err := f.vault.WrapContentKeyFor(req.PublicKey)
	if err != nil {
		return err
	}

	if err := f.remote.SubmitWrappedKey(ctx, deviceID, wrapped); err != nil {
		return fmt.Errorf("submit wrapped key: %w", err)
	}

	err = f.devices.Save(ctx, &models.Device{
		ID:        deviceID,
		Name:      req.DeviceName,
		Type:      req.DeviceType,
		PublicKey: req.PublicKey,
		Trusted:   false,
	})
	if err != nil {
		return err
	}

	f.logger.Info(ctx, "device approved", "device_id", deviceID)
	return nil
}

// CompleteApproval finishes enrollment on the new device: it fetches the
// wrapped content key, proves receipt by unwrapping with this device's
// private key, and only then marks itself trusted. While no wrapped key has
// been posted yet it returns common.ErrNotFound; callers poll.
func (f *Flow) CompleteApproval(ctx context.Context) error {
	rawID, err := f.meta.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return err
	}
	if rawID == nil {
		return fmt.Errorf("enrollment never started: %w", common.ErrNoKeyMaterial)
	}
	deviceID := string(rawID)

	wrapped, err := f.remote.FetchWrappedKey(ctx, deviceID)
	if err != nil {
		return err
	}

	if err := f.vault.AdoptWrappedContentKey(ctx, wrapped); err != nil {
		return err
	}

	if err := f.devices.SetTrusted(ctx, deviceID, true, f.now()); err != nil {
		return err
	}

	f.logger.Info(ctx, "device enrollment complete", "device_id", deviceID)
	return nil
}

// Revoke withdraws trust from a device account-wide. The revoked device's
// key is excluded from any future content key distribution.
func (f *Flow) Revoke(ctx context.Context, deviceID string) error {
	if err := f.remote.RevokeDevice(ctx, deviceID); err != nil {
		return err
	}
	if err := f.devices.SetTrusted(ctx, deviceID, false, f.now()); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	f.logger.Info(ctx, "device revoked", "device_id", deviceID)
	return nil
}
