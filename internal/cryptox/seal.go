package cryptox

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "gophchat/seal/v1"

// SealOverhead is the size Seal adds to a plaintext: ephemeral public key,
// IV and GCM tag.
const SealOverhead = 32 + IVSize + 16

// sealKey derives the AES key for one sealed box. Both public keys are
// mixed into the HKDF info so a box cannot be replayed to another
// recipient or re-keyed with another ephemeral.
func sealKey(shared, ephemeralPub, recipientPub []byte) ([]byte, error) {
	info := make([]byte, 0, len(sealInfo)+len(ephemeralPub)+len(recipientPub))
	info = append(info, sealInfo...)
	info = append(info, ephemeralPub...)
	info = append(info, recipientPub...)

	key := make([]byte, common.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, info), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext so only the holder of the private key matching
// recipientPub can open it (ECIES: ephemeral X25519, HKDF-SHA256,
// AES-256-GCM). Output layout: ephemeral public key || IV || ciphertext.
func Seal(plaintext, recipientPub, aad []byte) ([]byte, error) {
	curve := ecdh.X25519()
	recipient, err := curve.NewPublicKey(recipientPub)
	if err != nil {
		return nil, fmt.Errorf("recipient key: %w", common.ErrInvalidInput)
	}

	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient key: %w", common.ErrInvalidInput)
	}
	defer common.WipeByteArray(shared)

	ephemeralPub := ephemeral.PublicKey().Bytes()
	key, err := sealKey(shared, ephemeralPub, recipientPub)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ciphertext, iv, err := Encrypt(plaintext, key, aad)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephemeralPub)+len(iv)+len(ciphertext))
	out = append(out, ephemeralPub...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal with the recipient's private key. Any mismatch
// (foreign key pair, truncation, tampering, wrong aad) returns
// common.ErrDecryptionFailed.
func Open(sealed, recipientPriv, aad []byte) ([]byte, error) {
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(recipientPriv)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", common.ErrInvalidInput)
	}
	if len(sealed) < SealOverhead {
		return nil, common.ErrDecryptionFailed
	}

	ephemeralPub := sealed[:32]
	iv := sealed[32 : 32+IVSize]
	ciphertext := sealed[32+IVSize:]

	ephemeral, err := curve.NewPublicKey(ephemeralPub)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	shared, err := priv.ECDH(ephemeral)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	defer common.WipeByteArray(shared)

	key, err := sealKey(shared, ephemeralPub, priv.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return Decrypt(ciphertext, iv, key, aad)
}
