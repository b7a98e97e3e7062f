// Package models defines the typed records that cross the storage boundary:
// user key material, wrapped channel keys, encrypted messages and channel
// descriptors. Every record validates itself; backends call Validate on
// write and after read so malformed rows never reach the crypto layer.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
)

// gcmTagSize is the authentication tag appended by AES-GCM.
const gcmTagSize = 16

// UserKeyMaterial is the public half of a user's identity plus the
// password-encrypted private key. Only the owner can open
// EncryptedPrivateKey.
type UserKeyMaterial struct {
	UserID              string            `json:"user_id"`
	PublicKey           []byte            `json:"public_key"`
	EncryptedPrivateKey []byte            `json:"encrypted_private_key"`
	PrivateKeyIV        []byte            `json:"private_key_iv"`
	Salt                []byte            `json:"salt"`
	KDF                 cryptox.KDFParams `json:"kdf"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (m *UserKeyMaterial) Validate() error {
	switch {
	case m == nil:
		return invalid("user key material", "nil record")
	case m.UserID == "":
		return invalid("user_id", "empty")
	case cryptox.ValidatePublicKey(m.PublicKey) != nil:
		return invalid("public_key", "not an x25519 key")
	case len(m.EncryptedPrivateKey) != common.KeySize+gcmTagSize:
		return invalid("encrypted_private_key", "wrong length")
	case len(m.PrivateKeyIV) != cryptox.IVSize:
		return invalid("private_key_iv", "wrong length")
	case len(m.Salt) < cryptox.MinSaltSize:
		return invalid("salt", "too short")
	}
	if err := m.KDF.Validate(); err != nil {
		return invalid("kdf", "zero cost parameter")
	}
	return nil
}

// WrappedChannelKey is a channel key sealed to one member's public key.
// Epoch counts key generations within the channel, starting at 1.
type WrappedChannelKey struct {
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id"`
	Epoch      int64     `json:"epoch"`
	WrappedKey []byte    `json:"encrypted_channel_key"`
	IssuerID   string    `json:"issuer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (w *WrappedChannelKey) Validate() error {
	switch {
	case w == nil:
		return invalid("wrapped channel key", "nil record")
	case w.ChannelID == "":
		return invalid("channel_id", "empty")
	case w.UserID == "":
		return invalid("user_id", "empty")
	case w.Epoch < 1:
		return invalid("epoch", "must be positive")
	case len(w.WrappedKey) != common.KeySize+cryptox.SealOverhead:
		return invalid("encrypted_channel_key", "wrong length")
	case w.IssuerID == "":
		return invalid("issuer_id", "empty")
	}
	return nil
}

// EncryptedMessage is an append-only chat message. Ciphertext and IV are
// opaque to storage.
type EncryptedMessage struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id"`
	KeyEpoch   int64     `json:"key_epoch"`
	Ciphertext []byte    `json:"encrypted_content"`
	IV         []byte    `json:"iv"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m *EncryptedMessage) Validate() error {
	switch {
	case m == nil:
		return invalid("message", "nil record")
	case m.ID == "":
		return invalid("id", "empty")
	case m.ChannelID == "":
		return invalid("channel_id", "empty")
	case m.UserID == "":
		return invalid("user_id", "empty")
	case m.KeyEpoch < 1:
		return invalid("key_epoch", "must be positive")
	case len(m.Ciphertext) < gcmTagSize:
		return invalid("encrypted_content", "too short")
	case len(m.IV) != cryptox.IVSize:
		return invalid("iv", "wrong length")
	case m.CreatedAt.IsZero():
		return invalid("created_at", "zero")
	}
	return nil
}

// Channel describes a conversation. Names and descriptions are metadata
// visible to the store; only message bodies and keys are end-to-end
// encrypted.
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDirect    bool      `json:"is_direct"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *Channel) Validate() error {
	switch {
	case c == nil:
		return invalid("channel", "nil record")
	case c.ID == "":
		return invalid("id", "empty")
	case c.Name == "":
		return invalid("name", "empty")
	case c.CreatedBy == "":
		return invalid("created_by", "empty")
	}
	return nil
}

// DecodedMessage is what the UI receives. When Err is set (always
// common.ErrDecryptionFailed) Plaintext is empty and the message should be
// shown as an opaque placeholder.
type DecodedMessage struct {
	ID        string
	ChannelID string
	UserID    string
	Plaintext string
	CreatedAt time.Time
	Err       error
}

// Failed reports whether the message could not be decrypted.
func (d DecodedMessage) Failed() bool { return d.Err != nil }

func invalid(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, common.ErrInvalidInput)
}
