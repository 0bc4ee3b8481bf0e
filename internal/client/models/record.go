// Package models defines client-side data models used by the Kith core:
// records, sync queue entries, and devices.
package models

import (
	"encoding/json"
	"time"
)

// Kind classifies a record.
type Kind string

const (
	KindPerson     Kind = "person"
	KindNote       Kind = "note"
	KindGroup      Kind = "group"
	KindActionItem Kind = "action_item"
)

// Confidential reports whether payloads of this kind must be end-to-end
// encrypted before leaving the device. Only notes carry free-form content.
func (k Kind) Confidential() bool {
	return k == KindNote
}

// SyncStatus is the per-record synchronization state.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
)

// Record is the generic envelope persisted locally and synced with the
// server. Payload holds the plaintext kind-specific fields as JSON; for
// confidential kinds PayloadCipher/Nonce additionally hold the last AEAD
// ciphertext that crossed the wire.
type Record struct {
	// ID is a globally unique identifier for the record.
	ID string

	// Kind selects the payload schema.
	Kind Kind

	// Payload is the plaintext kind-specific JSON.
	Payload []byte

	// PayloadCipher and Nonce carry the wire ciphertext for confidential
	// kinds; both are nil otherwise.
	PayloadCipher []byte
	Nonce         []byte

	// BaseVersion is the server version of the last common synced baseline,
	// used to detect divergence during reconciliation.
	BaseVersion int64

	// UpdatedAt is the last modification time in UTC.
	UpdatedAt time.Time

	// SyncStatus tracks where the record stands relative to the server.
	SyncStatus SyncStatus

	// DeletedAt marks the record as a tombstone awaiting delete propagation.
	DeletedAt *time.Time

	// ConflictPayload holds the remote snapshot when SyncStatus is conflict,
	// kept for manual merge.
	ConflictPayload []byte
}

// Deleted reports whether the record is a tombstone.
func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}

// Person is a contact the user keeps notes about.
type Person struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Company   string   `json:"company"`
	Tags      []string `json:"tags,omitempty"`
}

func (Person) GetKind() Kind { return KindPerson }

// Note is free-form confidential text, optionally attached to a person.
type Note struct {
	PersonID string `json:"person_id,omitempty"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

func (Note) GetKind() Kind { return KindNote }

// Group is a named collection of people.
type Group struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

func (Group) GetKind() Kind { return KindGroup }

// ActionItem is a follow-up task tied to a person.
type ActionItem struct {
	PersonID    string     `json:"person_id,omitempty"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Done        bool       `json:"done"`
}

func (ActionItem) GetKind() Kind { return KindActionItem }

// Typed is implemented by every payload type.
type Typed interface {
	GetKind() Kind
}

// WrapPayload serializes a typed payload into a record-ready JSON blob.
func WrapPayload(v Typed) (Kind, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return v.GetKind(), b, nil
}

// UnwrapPayload deserializes a record payload into its concrete type.
func UnwrapPayload(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindPerson:
		var v Person
		return v, json.Unmarshal(payload, &v)
	case KindNote:
		var v Note
		return v, json.Unmarshal(payload, &v)
	case KindGroup:
		var v Group
		return v, json.Unmarshal(payload, &v)
	case KindActionItem:
		var v ActionItem
		return v, json.Unmarshal(payload, &v)
	default:
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}
