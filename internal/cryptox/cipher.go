package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// IVSize is the length of the random per-message GCM nonce (128 bits).
const IVSize = 16

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != common.KeySize {
		return nil, fmt.Errorf("key must be %d bytes: %w", common.KeySize, common.ErrInvalidInput)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", common.ErrInvalidInput)
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encrypt seals plaintext with AES-256-GCM under key. A new random IV is
// drawn on every call and returned separately; it is not secret but must
// be stored next to the ciphertext. aad is authenticated, not encrypted.
//
// Example:
//
//	ct, iv, err := cryptox.Encrypt([]byte("hello"), channelKey, []byte(channelID))
func Encrypt(plaintext, key, aad []byte) (ciphertext, iv []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv, err = common.RandomBytes(IVSize)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, iv, plaintext, aad)
	return ciphertext, iv, nil
}

// Decrypt opens a ciphertext produced by Encrypt. A wrong key, a tampered
// ciphertext, mismatched aad or a malformed IV all yield the same
// common.ErrDecryptionFailed; GCM verifies the tag in constant time.
func Decrypt(ciphertext, iv, key, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize || len(ciphertext) < aead.Overhead() {
		return nil, common.ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
