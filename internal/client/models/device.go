package models

import "time"

// Device is a piece of hardware enrolled under the account. A device is
// created locally on first launch with a fresh key pair and becomes trusted
// only after the approval flow completes; revocation flips Trusted back and
// excludes the device from future content-key distributions.
type Device struct {
	ID         string
	Name       string
	Type       string
	PublicKey  []byte
	ApprovedAt *time.Time
	Trusted    bool
}
