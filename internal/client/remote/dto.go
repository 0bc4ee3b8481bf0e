package remote

import (
	"time"

	"github.com/kith-app/kith/internal/client/models"
)

// Wire objects. The server speaks snake_case JSON; the mapping to and from
// the canonical models happens here and nowhere else.

type recordDTO struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Payload       []byte    `json:"payload,omitempty"`
	PayloadCipher []byte    `json:"payload_cipher,omitempty"`
	Nonce         []byte    `json:"nonce,omitempty"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
	Deleted       bool      `json:"deleted"`
}

func (d recordDTO) toModel() RemoteRecord {
	return RemoteRecord{
		ID:            d.ID,
		Kind:          models.Kind(d.Kind),
		Payload:       d.Payload,
		PayloadCipher: d.PayloadCipher,
		Nonce:         d.Nonce,
		Version:       d.Version,
		UpdatedAt:     d.UpdatedAt,
		Deleted:       d.Deleted,
	}
}

func recordToDTO(r RemoteRecord) recordDTO {
	return recordDTO{
		ID:            r.ID,
		Kind:          string(r.Kind),
		Payload:       r.Payload,
		PayloadCipher: r.PayloadCipher,
		Nonce:         r.Nonce,
		Version:       r.Version,
		UpdatedAt:     r.UpdatedAt,
		Deleted:       r.Deleted,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

type loginRequest struct {
	Username          string `json:"username"`
	VerifierCandidate []byte `json:"verifier_candidate"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changesResponse struct {
	Records    []recordDTO `json:"records"`
	NextCursor int64       `json:"next_cursor"`
}

type pushRequest struct {
	Operation string    `json:"operation"`
	Record    recordDTO `json:"record"`
}

type pushResponse struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type registerDeviceRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	PublicKey       []byte `json:"public_key"`
	MasterPublicKey []byte `json:"master_public_key,omitempty"`
}

type registerDeviceResponse struct {
	DeviceID string `json:"device_id"`
}

type approvalRequestDTO struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	PublicKey  []byte    `json:"public_key"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d approvalRequestDTO) toModel() ApprovalRequest {
	return ApprovalRequest{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType,
		PublicKey:  d.PublicKey,
		CreatedAt:  d.CreatedAt,
	}
}

type approvalListResponse struct {
	Requests []approvalRequestDTO `json:"requests"`
}

type wrappedKeyRequest struct {
	DeviceID   string `json:"device_id"`
	WrappedKey []byte `json:"wrapped_key"`
}

type wrappedKeyResponse struct {
	WrappedKey []byte `json:"wrapped_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}
