package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMaterial(t *testing.T) *UserKeyMaterial {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return &UserKeyMaterial{
		UserID:              "alice",
		PublicKey:           kp.Public,
		EncryptedPrivateKey: make([]byte, common.KeySize+gcmTagSize),
		PrivateKeyIV:        make([]byte, cryptox.IVSize),
		Salt:                make([]byte, cryptox.MinSaltSize),
		KDF:                 cryptox.DefaultKDFParams(),
		UpdatedAt:           time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestUserKeyMaterial_Validate(t *testing.T) {
	require.NoError(t, validMaterial(t).Validate())

	tests := []struct {
		name   string
		mutate func(m *UserKeyMaterial)
	}{
		{"empty user", func(m *UserKeyMaterial) { m.UserID = "" }},
		{"bad public key", func(m *UserKeyMaterial) { m.PublicKey = []byte("pk") }},
		{"short private key", func(m *UserKeyMaterial) { m.EncryptedPrivateKey = m.EncryptedPrivateKey[:10] }},
		{"bad iv", func(m *UserKeyMaterial) { m.PrivateKeyIV = nil }},
		{"short salt", func(m *UserKeyMaterial) { m.Salt = []byte("s") }},
		{"zero kdf", func(m *UserKeyMaterial) { m.KDF = cryptox.KDFParams{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMaterial(t)
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), common.ErrInvalidInput)
		})
	}

	var nilMaterial *UserKeyMaterial
	assert.ErrorIs(t, nilMaterial.Validate(), common.ErrInvalidInput)
}

func TestWrappedChannelKey_Validate(t *testing.T) {
	w := &WrappedChannelKey{
		ChannelID:  "c1",
		UserID:     "bob",
		Epoch:      1,
		WrappedKey: make([]byte, common.KeySize+cryptox.SealOverhead),
		IssuerID:   "alice",
	}
	require.NoError(t, w.Validate())

	w.Epoch = 0
	assert.ErrorIs(t, w.Validate(), common.ErrInvalidInput)

	w.Epoch = 1
	w.WrappedKey = w.WrappedKey[:20]
	assert.ErrorIs(t, w.Validate(), common.ErrInvalidInput)
}

func TestEncryptedMessage_Validate(t *testing.T) {
	m := &EncryptedMessage{
		ID:         "m1",
		ChannelID:  "c1",
		UserID:     "alice",
		KeyEpoch:   1,
		Ciphertext: make([]byte, 21),
		IV:         make([]byte, cryptox.IVSize),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, m.Validate())

	m.CreatedAt = time.Time{}
	assert.ErrorIs(t, m.Validate(), common.ErrInvalidInput)
}

func TestChannel_Validate(t *testing.T) {
	c := &Channel{ID: "c1", Name: "general", CreatedBy: "alice"}
	require.NoError(t, c.Validate())

	c.Name = ""
	err := c.Validate()
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Contains(t, err.Error(), "name")
}

func TestUserKeyMaterial_BinaryRoundTrip(t *testing.T) {
	src := validMaterial(t)
	data, err := src.MarshalBinary()
	require.NoError(t, err)

	var got UserKeyMaterial
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Empty(t, cmp.Diff(src, &got))
	assert.NoError(t, got.Validate())
}

func TestEncryptedMessage_UnmarshalMalformed(t *testing.T) {
	var m EncryptedMessage
	err := m.UnmarshalBinary([]byte{0x0a, 0x05, 'a'})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDecodedMessage_Failed(t *testing.T) {
	assert.False(t, DecodedMessage{Plaintext: "hi"}.Failed())
	assert.True(t, DecodedMessage{Err: common.ErrDecryptionFailed}.Failed())
}
