package channelkeys

import (
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPair(t *testing.T) *cryptox.KeyPair {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestCreateChannelKey(t *testing.T) {
	m := New()
	a, err := m.CreateChannelKey()
	require.NoError(t, err)
	b, err := m.CreateChannelKey()
	require.NoError(t, err)

	assert.Len(t, a, common.KeySize)
	assert.NotEqual(t, a, b)
}

func TestWrapUnwrap_MatchingPair(t *testing.T) {
	m := New()
	bob := mustPair(t)
	key, err := m.CreateChannelKey()
	require.NoError(t, err)

	w, err := m.WrapForMember("c1", 1, key, "alice", "bob", bob.Public)
	require.NoError(t, err)
	require.NoError(t, w.Validate())
	assert.Equal(t, "bob", w.UserID)
	assert.Equal(t, "alice", w.IssuerID)
	assert.NotContains(t, string(w.WrappedKey), string(key), "wrapped form must not embed the key")

	got, err := m.Unwrap(w, bob.Private)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestUnwrap_AccessDenied(t *testing.T) {
	m := New()
	bob := mustPair(t)
	carol := mustPair(t)
	key, err := m.CreateChannelKey()
	require.NoError(t, err)

	w, err := m.WrapForMember("c1", 1, key, "alice", "bob", bob.Public)
	require.NoError(t, err)

	t.Run("foreign private key", func(t *testing.T) {
		_, err := m.Unwrap(w, carol.Private)
		assert.ErrorIs(t, err, common.ErrAccessDenied)
	})

	t.Run("row moved to another member", func(t *testing.T) {
		moved := *w
		moved.UserID = "carol"
		_, err := m.Unwrap(&moved, bob.Private)
		assert.ErrorIs(t, err, common.ErrAccessDenied)
	})

	t.Run("row moved to another epoch", func(t *testing.T) {
		moved := *w
		moved.Epoch = 2
		_, err := m.Unwrap(&moved, bob.Private)
		assert.ErrorIs(t, err, common.ErrAccessDenied)
	})

	t.Run("malformed row", func(t *testing.T) {
		broken := *w
		broken.WrappedKey = broken.WrappedKey[:10]
		_, err := m.Unwrap(&broken, bob.Private)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func TestWrapForMember_InvalidInput(t *testing.T) {
	m := New()
	bob := mustPair(t)
	key, err := m.CreateChannelKey()
	require.NoError(t, err)

	_, err = m.WrapForMember("c1", 1, key[:5], "alice", "bob", bob.Public)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = m.WrapForMember("", 1, key, "alice", "bob", bob.Public)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = m.WrapForMember("c1", 0, key, "alice", "bob", bob.Public)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = m.WrapForMember("c1", 1, key, "alice", "bob", []byte("bad"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFanOut(t *testing.T) {
	m := New()
	alice, bob := mustPair(t), mustPair(t)
	key, err := m.CreateChannelKey()
	require.NoError(t, err)

	rows, err := m.FanOut("c1", 3, key, "alice", map[string][]byte{
		"bob":   bob.Public,
		"alice": alice.Public,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, "bob", rows[1].UserID)

	for _, r := range rows {
		assert.Equal(t, int64(3), r.Epoch)
	}

	got, err := m.Unwrap(rows[1], bob.Private)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = m.FanOut("c1", 1, key, "alice", map[string][]byte{"eve": []byte("x")})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestKeyring(t *testing.T) {
	r := NewKeyring()
	k1 := ChannelKey{1, 1, 1}
	k2 := ChannelKey{2, 2, 2}

	_, _, ok := r.Latest("c1")
	assert.False(t, ok)

	r.Put("c1", 1, k1)
	r.Put("c1", 2, k2)

	got, ok := r.Get("c1", 1)
	require.True(t, ok)
	assert.Equal(t, k1, got)

	latest, epoch, ok := r.Latest("c1")
	require.True(t, ok)
	assert.Equal(t, int64(2), epoch)
	assert.Equal(t, k2, latest)

	assert.Len(t, r.Snapshot("c1"), 2)
	assert.Empty(t, r.Snapshot("other"))

	replacement := ChannelKey{3, 3, 3}
	r.Put("c1", 1, replacement)
	assert.Equal(t, ChannelKey{0, 0, 0}, k1, "replaced key is wiped")

	r.Wipe()
	assert.Equal(t, ChannelKey{0, 0, 0}, k2)
	_, ok = r.Get("c1", 2)
	assert.False(t, ok)
}
