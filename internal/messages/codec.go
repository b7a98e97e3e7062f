// Package messages encrypts and decrypts chat message bodies under a
// channel key.
package messages

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/channelkeys"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxPlaintextSize bounds a single message body.
const MaxPlaintextSize = 64 * 1024

// Codec is stateless apart from its clock; one instance may be shared by
// any number of goroutines.
type Codec struct {
	now         func() time.Time
	parallelism int
}

func NewCodec() *Codec {
	return &Codec{now: time.Now, parallelism: runtime.GOMAXPROCS(0)}
}

// Encode encrypts plaintext for channelID under key (generation epoch).
// The channel id is authenticated so a ciphertext cannot be replayed into
// another channel.
func (c *Codec) Encode(channelID, userID string, epoch int64, plaintext []byte, key channelkeys.ChannelKey) (*models.EncryptedMessage, error) {
	if channelID == "" || userID == "" || epoch < 1 {
		return nil, fmt.Errorf("message header: %w", common.ErrInvalidInput)
	}
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("message larger than %d bytes: %w", MaxPlaintextSize, common.ErrInvalidInput)
	}

	ct, iv, err := cryptox.Encrypt(plaintext, key, []byte(channelID))
	if err != nil {
		return nil, err
	}

	return &models.EncryptedMessage{
		ID:         uuid.NewString(),
		ChannelID:  channelID,
		UserID:     userID,
		KeyEpoch:   epoch,
		Ciphertext: ct,
		IV:         iv,
		CreatedAt:  c.now().UTC(),
	}, nil
}

// Decode decrypts one message. A key that does not match, including a nil
// key, yields common.ErrDecryptionFailed.
func (c *Codec) Decode(msg *models.EncryptedMessage, key channelkeys.ChannelKey) ([]byte, error) {
	if len(key) != common.KeySize {
		return nil, common.ErrDecryptionFailed
	}
	return cryptox.Decrypt(msg.Ciphertext, msg.IV, key, []byte(msg.ChannelID))
}

// DecodeAll decrypts msgs concurrently, picking each message's key from
// keys by its KeyEpoch. The result has one entry per input message in the
// same order; messages that cannot be decrypted carry
// common.ErrDecryptionFailed instead of failing the batch. Only ctx
// cancellation is returned as an error.
func (c *Codec) DecodeAll(ctx context.Context, msgs []*models.EncryptedMessage, keys map[int64]channelkeys.ChannelKey) ([]models.DecodedMessage, error) {
	out := make([]models.DecodedMessage, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.parallelism, 1))

	for i, msg := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			d := models.DecodedMessage{
				ID:        msg.ID,
				ChannelID: msg.ChannelID,
				UserID:    msg.UserID,
				CreatedAt: msg.CreatedAt,
			}
			plaintext, err := c.Decode(msg, keys[msg.KeyEpoch])
			if err != nil {
				d.Err = common.ErrDecryptionFailed
			} else {
				d.Plaintext = string(plaintext)
			}
			out[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
