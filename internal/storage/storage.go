// Package storage defines the record-store boundary of gophchat. The store
// is an opaque holder of public keys, encrypted private keys, wrapped
// channel keys and ciphertext; it never sees a plaintext key or message.
//
// Implementations live in subpackages: memory, sqlite, postgres,
// objectstore (S3) and remote (gRPC).
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

// Store is the persistence contract consumed by the chat session.
//
// Lookups of absent records return common.ErrorNotFound. Records are
// validated on the way in and on the way out.
type Store interface {
	PutUserKeyMaterial(ctx context.Context, userID string, m *models.UserKeyMaterial) error
	GetUserKeyMaterial(ctx context.Context, userID string) (*models.UserKeyMaterial, error)

	// PutWrappedChannelKey upserts the row for (channel, user, w.Epoch).
	PutWrappedChannelKey(ctx context.Context, channelID, userID string, w *models.WrappedChannelKey) error
	// GetWrappedChannelKey returns the user's row with the highest epoch.
	GetWrappedChannelKey(ctx context.Context, channelID, userID string) (*models.WrappedChannelKey, error)
	// ListWrappedChannelKeys returns all of the user's rows, oldest epoch first.
	ListWrappedChannelKeys(ctx context.Context, channelID, userID string) ([]*models.WrappedChannelKey, error)
	// ListChannelMembers returns the users holding a row at the channel's
	// latest epoch, sorted.
	ListChannelMembers(ctx context.Context, channelID string) ([]string, error)

	// AppendMessage stores a new message; a duplicate id is
	// common.ErrorAlreadyExists.
	AppendMessage(ctx context.Context, m *models.EncryptedMessage) error
	// ListMessages returns the channel's messages by ascending creation
	// time, ties broken by id.
	ListMessages(ctx context.Context, channelID string) ([]*models.EncryptedMessage, error)
	// ListMessagesBefore returns up to limit of the newest messages that
	// sort strictly before the cursor, in the same ascending order.
	// limit must be positive and is capped at MaxPageSize.
	ListMessagesBefore(ctx context.Context, channelID string, before Cursor, limit int) ([]*models.EncryptedMessage, error)

	PutChannel(ctx context.Context, c *models.Channel) error
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	// ListChannels returns channels the user is a current member of.
	ListChannels(ctx context.Context, userID string) ([]*models.Channel, error)

	Close() error
}

// CheckUserKeyMaterial validates m and that it belongs to userID.
func CheckUserKeyMaterial(userID string, m *models.UserKeyMaterial) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.UserID != userID {
		return fmt.Errorf("user_id mismatch: %w", common.ErrInvalidInput)
	}
	return nil
}

// CheckWrappedChannelKey validates w and that it sits in the given slot.
func CheckWrappedChannelKey(channelID, userID string, w *models.WrappedChannelKey) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.ChannelID != channelID || w.UserID != userID {
		return fmt.Errorf("wrapped key slot mismatch: %w", common.ErrInvalidInput)
	}
	return nil
}

// MaxPageSize caps the limit of ListMessagesBefore.
const MaxPageSize = 500

// Cursor is a position in a channel's message order. The zero Cursor sits
// after the newest message.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position of m; paging from it continues with the
// messages older than m.
func CursorOf(m *models.EncryptedMessage) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func (c Cursor) IsZero() bool { return c.CreatedAt.IsZero() && c.ID == "" }

// Precedes reports whether a message at (createdAt, id) sorts before c.
func (c Cursor) Precedes(createdAt time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if !createdAt.Equal(c.CreatedAt) {
		return createdAt.Before(c.CreatedAt)
	}
	return id < c.ID
}

// CheckPageSize validates a page limit and applies MaxPageSize.
func CheckPageSize(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("page size %d: %w", limit, common.ErrInvalidInput)
	}
	return min(limit, MaxPageSize), nil
}

// PageMessages applies a ListMessagesBefore window to msgs, which must
// already be sorted with SortMessages.
func PageMessages(msgs []*models.EncryptedMessage, before Cursor, limit int) []*models.EncryptedMessage {
	end := sort.Search(len(msgs), func(i int) bool {
		return !before.Precedes(msgs[i].CreatedAt, msgs[i].ID)
	})
	start := max(0, end-limit)
	return msgs[start:end]
}

// SortMessages orders msgs by creation time, then id.
func SortMessages(msgs []*models.EncryptedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// SortChannels orders channels by creation time, then id.
func SortChannels(chs []*models.Channel) {
	sort.SliceStable(chs, func(i, j int) bool {
		if !chs[i].CreatedAt.Equal(chs[j].CreatedAt) {
			return chs[i].CreatedAt.Before(chs[j].CreatedAt)
		}
		return chs[i].ID < chs[j].ID
	})
}
