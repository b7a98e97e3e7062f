package messages

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/channelkeys"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) channelkeys.ChannelKey {
	t.Helper()
	k, err := channelkeys.New().CreateChannelKey()
	require.NoError(t, err)
	return k
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := NewCodec()
	key := newKey(t)

	msg, err := c.Encode("c1", "alice", 1, []byte("hello"), key)
	require.NoError(t, err)
	require.NoError(t, msg.Validate())
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	got, err := c.Decode(msg, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestEncode_SamePlaintextDiffers(t *testing.T) {
	c := NewCodec()
	key := newKey(t)

	a, err := c.Encode("c1", "alice", 1, []byte("hello"), key)
	require.NoError(t, err)
	b, err := c.Encode("c1", "alice", 1, []byte("hello"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDecode_Failures(t *testing.T) {
	c := NewCodec()
	key := newKey(t)
	msg, err := c.Encode("c1", "alice", 1, []byte("hello"), key)
	require.NoError(t, err)

	_, err = c.Decode(msg, newKey(t))
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)

	_, err = c.Decode(msg, nil)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)

	replayed := *msg
	replayed.ChannelID = "c2"
	_, err = c.Decode(&replayed, key)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestEncode_InvalidInput(t *testing.T) {
	c := NewCodec()
	key := newKey(t)

	_, err := c.Encode("", "alice", 1, []byte("x"), key)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = c.Encode("c1", "alice", 1, []byte(strings.Repeat("x", MaxPlaintextSize+1)), key)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = c.Encode("c1", "alice", 1, []byte("x"), key[:3])
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDecodeAll_OrderAndMarkers(t *testing.T) {
	c := NewCodec()
	k1, k2 := newKey(t), newKey(t)

	var msgs []*models.EncryptedMessage
	for i := range 20 {
		epoch, key := int64(1), k1
		if i%2 == 1 {
			epoch, key = 2, k2
		}
		m, err := c.Encode("c1", "alice", epoch, fmt.Appendf(nil, "msg-%02d", i), key)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}

	// only epoch 1 is known: odd messages become placeholders
	out, err := c.DecodeAll(context.Background(), msgs, map[int64]channelkeys.ChannelKey{1: k1})
	require.NoError(t, err)
	require.Len(t, out, len(msgs))

	for i, d := range out {
		assert.Equal(t, msgs[i].ID, d.ID)
		if i%2 == 0 {
			assert.Equal(t, fmt.Sprintf("msg-%02d", i), d.Plaintext)
			assert.NoError(t, d.Err)
		} else {
			assert.True(t, d.Failed())
			assert.ErrorIs(t, d.Err, common.ErrDecryptionFailed)
			assert.Empty(t, d.Plaintext)
		}
	}
}

func TestDecodeAll_NoKeys(t *testing.T) {
	c := NewCodec()
	m, err := c.Encode("c1", "alice", 1, []byte("secret"), newKey(t))
	require.NoError(t, err)

	out, err := c.DecodeAll(context.Background(), []*models.EncryptedMessage{m}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, common.ErrDecryptionFailed)
}

func TestDecodeAll_Cancelled(t *testing.T) {
	c := NewCodec()
	key := newKey(t)
	m, err := c.Encode("c1", "alice", 1, []byte("x"), key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.DecodeAll(ctx, []*models.EncryptedMessage{m}, map[int64]channelkeys.ChannelKey{1: key})
	assert.ErrorIs(t, err, context.Canceled)
}
