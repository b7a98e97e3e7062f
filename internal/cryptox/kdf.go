// Package cryptox holds the primitive cryptography used by gophchat:
// password-based key derivation (Argon2id), authenticated symmetric
// encryption (AES-256-GCM), X25519 key pairs and sealing of small secrets
// to a recipient public key.
package cryptox

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"golang.org/x/crypto/argon2"
)

// MinSaltSize is the shortest salt DeriveKey accepts.
const MinSaltSize = 16

// KDFParams are the Argon2id cost parameters. They are persisted next to
// the salt so a key derived today can be re-derived after defaults change.
type KDFParams struct {
	Time      uint32 `json:"kdf_time"`
	MemoryKiB uint32 `json:"kdf_memory_kib"`
	Threads   uint8  `json:"kdf_threads"`
}

// DefaultKDFParams takes well over 100ms on a 2024 laptop core.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate reports whether all cost parameters are non-zero.
func (p KDFParams) Validate() error {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return fmt.Errorf("kdf params: %w", common.ErrInvalidInput)
	}
	return nil
}

// DeriveKey turns a password and salt into a 256-bit key with Argon2id.
// The same inputs always produce the same key.
func DeriveKey(password, salt []byte, p KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("empty password: %w", common.ErrInvalidInput)
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("salt shorter than %d bytes: %w", MinSaltSize, common.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, common.KeySize), nil
}

// NewSalt returns a fresh random salt of MinSaltSize bytes.
func NewSalt() ([]byte, error) {
	return common.RandomBytes(MinSaltSize)
}

// KeyResult is delivered by DeriveKeyAsync.
type KeyResult struct {
	Key []byte
	Err error
}

// DeriveKeyAsync runs DeriveKey on its own goroutine and delivers the result
// on the returned channel, which is buffered so the worker never blocks.
// Inputs are copied, so the caller may wipe its password right away.
// Argon2 has no abort point: cancelling ctx does not stop the work.
func DeriveKeyAsync(password, salt []byte, p KDFParams) <-chan KeyResult {
	out := make(chan KeyResult, 1)
	pw := common.CloneBytes(password)
	s := common.CloneBytes(salt)

	go func() {
		defer common.WipeByteArray(pw)
		key, err := DeriveKey(pw, s, p)
		out <- KeyResult{Key: key, Err: err}
	}()

	return out
}

// AwaitKey derives a key off the calling goroutine and waits for it.
// If ctx ends first, ctx.Err() is returned and the late result is wiped
// when it arrives.
func AwaitKey(ctx context.Context, password, salt []byte, p KDFParams) ([]byte, error) {
	ch := DeriveKeyAsync(password, salt, p)
	select {
	case res := <-ch:
		return res.Key, res.Err
	case <-ctx.Done():
		go func() {
			res := <-ch
			common.WipeByteArray(res.Key)
		}()
		return nil, ctx.Err()
	}
}
