// Package storetest is a conformance suite run by every storage backend.
package storetest

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Base is the timestamp fixtures are laid out from.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func random(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// Material returns valid key material for userID.
func Material(t *testing.T, userID string) *models.UserKeyMaterial {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return &models.UserKeyMaterial{
		UserID:              userID,
		PublicKey:           kp.Public,
		EncryptedPrivateKey: random(t, common.KeySize+16),
		PrivateKeyIV:        random(t, cryptox.IVSize),
		Salt:                random(t, cryptox.MinSaltSize),
		KDF:                 cryptox.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1},
		UpdatedAt:           Base,
	}
}

// Wrapped returns a well-formed wrapped key row.
func Wrapped(t *testing.T, channelID, userID string, epoch int64) *models.WrappedChannelKey {
	t.Helper()
	return &models.WrappedChannelKey{
		ChannelID:  channelID,
		UserID:     userID,
		Epoch:      epoch,
		WrappedKey: random(t, common.KeySize+cryptox.SealOverhead),
		IssuerID:   "issuer",
		CreatedAt:  Base,
	}
}

// Message returns a well-formed message created offset after Base.
func Message(t *testing.T, id, channelID string, offset time.Duration) *models.EncryptedMessage {
	t.Helper()
	return &models.EncryptedMessage{
		ID:         id,
		ChannelID:  channelID,
		UserID:     "alice",
		KeyEpoch:   1,
		Ciphertext: random(t, 40),
		IV:         random(t, cryptox.IVSize),
		CreatedAt:  Base.Add(offset),
	}
}

// Channel returns a channel descriptor created offset after Base.
func Channel(id string, offset time.Duration) *models.Channel {
	return &models.Channel{
		ID:          id,
		Name:        "name-" + id,
		Description: "about " + id,
		CreatedBy:   "alice",
		CreatedAt:   Base.Add(offset),
	}
}

// Run executes the suite. open must return an empty store; it is closed
// by the suite.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	ctx := context.Background()

	fresh := func(t *testing.T) storage.Store {
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("user key material round trip", func(t *testing.T) {
		s := fresh(t)
		_, err := s.GetUserKeyMaterial(ctx, "alice")
		require.ErrorIs(t, err, common.ErrorNotFound)

		m := Material(t, "alice")
		require.NoError(t, s.PutUserKeyMaterial(ctx, "alice", m))

		got, err := s.GetUserKeyMaterial(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, m.PublicKey, got.PublicKey)
		assert.Equal(t, m.EncryptedPrivateKey, got.EncryptedPrivateKey)
		assert.Equal(t, m.PrivateKeyIV, got.PrivateKeyIV)
		assert.Equal(t, m.Salt, got.Salt)
		assert.Equal(t, m.KDF, got.KDF)
		assert.True(t, m.UpdatedAt.Equal(got.UpdatedAt))

		replaced := Material(t, "alice")
		require.NoError(t, s.PutUserKeyMaterial(ctx, "alice", replaced))
		got, err = s.GetUserKeyMaterial(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, replaced.PublicKey, got.PublicKey)
	})

	t.Run("user key material validation", func(t *testing.T) {
		s := fresh(t)
		m := Material(t, "alice")
		require.ErrorIs(t, s.PutUserKeyMaterial(ctx, "bob", m), common.ErrInvalidInput)

		m.Salt = m.Salt[:4]
		require.ErrorIs(t, s.PutUserKeyMaterial(ctx, "alice", m), common.ErrInvalidInput)
	})

	t.Run("wrapped keys by epoch", func(t *testing.T) {
		s := fresh(t)
		_, err := s.GetWrappedChannelKey(ctx, "c1", "alice")
		require.ErrorIs(t, err, common.ErrorNotFound)

		first := Wrapped(t, "c1", "alice", 1)
		second := Wrapped(t, "c1", "alice", 2)
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", "alice", second))
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", "alice", first))

		got, err := s.GetWrappedChannelKey(ctx, "c1", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Epoch)
		assert.Equal(t, second.WrappedKey, got.WrappedKey)
		assert.Equal(t, "issuer", got.IssuerID)

		all, err := s.ListWrappedChannelKeys(ctx, "c1", "alice")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(1), all[0].Epoch)
		assert.Equal(t, int64(2), all[1].Epoch)

		// same epoch replaces
		again := Wrapped(t, "c1", "alice", 2)
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", "alice", again))
		got, err = s.GetWrappedChannelKey(ctx, "c1", "alice")
		require.NoError(t, err)
		assert.Equal(t, again.WrappedKey, got.WrappedKey)

		none, err := s.ListWrappedChannelKeys(ctx, "c1", "bob")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("wrapped key slot mismatch", func(t *testing.T) {
		s := fresh(t)
		w := Wrapped(t, "c1", "alice", 1)
		require.ErrorIs(t, s.PutWrappedChannelKey(ctx, "c1", "bob", w), common.ErrInvalidInput)
		require.ErrorIs(t, s.PutWrappedChannelKey(ctx, "c2", "alice", w), common.ErrInvalidInput)
	})

	t.Run("members follow latest epoch", func(t *testing.T) {
		s := fresh(t)
		members, err := s.ListChannelMembers(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, members)

		for _, u := range []string{"carol", "alice", "bob"} {
			require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", u, Wrapped(t, "c1", u, 1)))
		}
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c2", "dave", Wrapped(t, "c2", "dave", 5)))

		members, err = s.ListChannelMembers(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol"}, members)

		for _, u := range []string{"alice", "carol"} {
			require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", u, Wrapped(t, "c1", u, 2)))
		}
		members, err = s.ListChannelMembers(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "carol"}, members)
	})

	t.Run("messages ordered and unique", func(t *testing.T) {
		s := fresh(t)
		msgs, err := s.ListMessages(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, msgs)

		require.NoError(t, s.AppendMessage(ctx, Message(t, "m3", "c1", 3*time.Second)))
		require.NoError(t, s.AppendMessage(ctx, Message(t, "m1", "c1", time.Second)))
		require.NoError(t, s.AppendMessage(ctx, Message(t, "m2b", "c1", 2*time.Second)))
		require.NoError(t, s.AppendMessage(ctx, Message(t, "m2a", "c1", 2*time.Second)))
		require.NoError(t, s.AppendMessage(ctx, Message(t, "x1", "c2", 0)))

		err = s.AppendMessage(ctx, Message(t, "m1", "c1", 9*time.Second))
		require.ErrorIs(t, err, common.ErrorAlreadyExists)

		bad := Message(t, "m9", "c1", 0)
		bad.IV = nil
		require.ErrorIs(t, s.AppendMessage(ctx, bad), common.ErrInvalidInput)

		msgs, err = s.ListMessages(ctx, "c1")
		require.NoError(t, err)
		var ids []string
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []string{"m1", "m2a", "m2b", "m3"}, ids)
		assert.True(t, Base.Add(time.Second).Equal(msgs[0].CreatedAt))
		assert.Equal(t, int64(1), msgs[0].KeyEpoch)
		assert.Equal(t, "alice", msgs[0].UserID)
	})

	t.Run("message pages", func(t *testing.T) {
		s := fresh(t)
		page, err := s.ListMessagesBefore(ctx, "c1", storage.Cursor{}, 10)
		require.NoError(t, err)
		assert.Empty(t, page)

		for _, m := range []*models.EncryptedMessage{
			Message(t, "m1", "c1", time.Second),
			Message(t, "m2a", "c1", 2*time.Second),
			Message(t, "m2b", "c1", 2*time.Second),
			Message(t, "m3", "c1", 3*time.Second),
			Message(t, "m4", "c1", 4*time.Second),
			Message(t, "x1", "c2", 5*time.Second),
		} {
			require.NoError(t, s.AppendMessage(ctx, m))
		}

		ids := func(msgs []*models.EncryptedMessage) []string {
			out := []string{}
			for _, m := range msgs {
				out = append(out, m.ID)
			}
			return out
		}

		page, err = s.ListMessagesBefore(ctx, "c1", storage.Cursor{}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m4"}, ids(page))

		// the cursor splits messages sharing a timestamp by id
		page, err = s.ListMessagesBefore(ctx, "c1", storage.CursorOf(page[0]), 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"m2a", "m2b"}, ids(page))

		page, err = s.ListMessagesBefore(ctx, "c1", storage.CursorOf(page[1]), 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2a"}, ids(page))
		assert.True(t, Base.Add(time.Second).Equal(page[0].CreatedAt))

		page, err = s.ListMessagesBefore(ctx, "c1", storage.Cursor{CreatedAt: Base.Add(2 * time.Second)}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids(page))

		page, err = s.ListMessagesBefore(ctx, "c1", storage.CursorOf(page[0]), 10)
		require.NoError(t, err)
		assert.Empty(t, page)

		_, err = s.ListMessagesBefore(ctx, "c1", storage.Cursor{}, 0)
		require.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("channels", func(t *testing.T) {
		s := fresh(t)
		_, err := s.GetChannel(ctx, "c1")
		require.ErrorIs(t, err, common.ErrorNotFound)

		c1 := Channel("c1", time.Second)
		c2 := Channel("c2", 0)
		c2.IsDirect = true
		c3 := Channel("c3", 2*time.Second)
		for _, c := range []*models.Channel{c1, c2, c3} {
			require.NoError(t, s.PutChannel(ctx, c))
		}
		require.ErrorIs(t, s.PutChannel(ctx, &models.Channel{ID: "c4"}), common.ErrInvalidInput)

		got, err := s.GetChannel(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, c2.Name, got.Name)
		assert.Equal(t, c2.Description, got.Description)
		assert.True(t, got.IsDirect)
		assert.Equal(t, "alice", got.CreatedBy)

		require.NoError(t, s.PutWrappedChannelKey(ctx, "c1", "bob", Wrapped(t, "c1", "bob", 1)))
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c2", "bob", Wrapped(t, "c2", "bob", 1)))
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c3", "bob", Wrapped(t, "c3", "bob", 1)))
		// bob was rotated out of c3
		require.NoError(t, s.PutWrappedChannelKey(ctx, "c3", "alice", Wrapped(t, "c3", "alice", 2)))

		list, err := s.ListChannels(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c2", list[0].ID)
		assert.Equal(t, "c1", list[1].ID)

		list, err = s.ListChannels(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
