// Package common contains shared constants and sentinel errors used across
// Kith components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Auth errors. ErrInvalidCredentials covers a wrong account password;
	// ErrNoKeyMaterial means registration never completed on this device.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoKeyMaterial      = errors.New("no key material")
	ErrUnauthorized       = errors.New("unauthorized")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Crypto errors are terminal: a failed decryption or unwrap is never
	// retried; the affected record surfaces to the caller instead.
	ErrCrypto = errors.New("crypto failure")

	// Network errors are transient and retried with capped backoff.
	ErrUnavailable = errors.New("server unavailable")

	// Semantic errors requiring caller resolution.
	ErrConflict = errors.New("conflict")

	ErrInternal = errors.New("internal error")
)
