package cryptox

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// KeyPair is an X25519 identity key pair in raw 32-byte encoding.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// Wipe zeroes the private half.
func (k *KeyPair) Wipe() {
	if k == nil {
		return
	}
	common.WipeByteArray(k.Private)
}

// GenerateKeyPair creates a fresh X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate x25519 key: %w", err)
	}
	return &KeyPair{Public: priv.PublicKey().Bytes(), Private: priv.Bytes()}, nil
}

// PublicKeyFor recomputes the public key for a raw private key.
func PublicKeyFor(private []byte) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", common.ErrInvalidInput)
	}
	return priv.PublicKey().Bytes(), nil
}

// ValidatePublicKey checks that b decodes as an X25519 public key.
func ValidatePublicKey(b []byte) error {
	if _, err := ecdh.X25519().NewPublicKey(b); err != nil {
		return fmt.Errorf("public key: %w", common.ErrInvalidInput)
	}
	return nil
}

// Matches reports whether private belongs to public.
func Matches(public, private []byte) bool {
	derived, err := PublicKeyFor(private)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, public) == 1
}
