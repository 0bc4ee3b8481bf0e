package devices

import (
	"context"
	"time"

	"github.com/kith-app/kith/internal/client/models"
)

// Repository persists the account's known devices on this client.
type Repository interface {
	// Save inserts or updates a device by ID.
	Save(ctx context.Context, device *models.Device) error

	// GetByID returns a device by its identifier.
	GetByID(ctx context.Context, id string) (*models.Device, error)

	// ListTrusted returns all currently trusted devices.
	ListTrusted(ctx context.Context) ([]models.Device, error)

	// ListAll returns every known device, trusted or not.
	ListAll(ctx context.Context) ([]models.Device, error)

	// SetTrusted marks a device trusted (stamping ApprovedAt) or revoked.
	SetTrusted(ctx context.Context, id string, trusted bool, at time.Time) error
}
