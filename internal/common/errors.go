// Package common defines shared constants and sentinel errors used across
// client and server layers of gophchat. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Crypto-level errors. Messages carry no key or plaintext material.
	ErrInvalidInput         = errors.New("invalid input")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrAccessDenied         = errors.New("access denied")

	// Session errors.
	ErrLocked = errors.New("key vault is locked")

	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Transport errors.
	ErrUnavailable  = errors.New("store unavailable")
	ErrInvalidToken = errors.New("invalid token")
)
