// Package channelkeys creates channel keys and distributes them to members.
//
// A channel key is 32 random bytes. Each member receives it sealed to their
// X25519 public key (see cryptox.Seal), so only someone already holding the
// plaintext key can admit a newcomer and the store never learns it.
package channelkeys

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

// ChannelKey is the plaintext symmetric key of one channel epoch.
type ChannelKey []byte

// Wipe zeroes the key in place.
func (k ChannelKey) Wipe() { common.WipeByteArray(k) }

// Manager wraps and unwraps channel keys. The zero value is not usable;
// use New.
type Manager struct {
	now func() time.Time
}

func New() *Manager {
	return &Manager{now: time.Now}
}

// CreateChannelKey returns a fresh random 256-bit key.
func (m *Manager) CreateChannelKey() (ChannelKey, error) {
	k, err := common.RandomBytes(common.KeySize)
	if err != nil {
		return nil, err
	}
	return ChannelKey(k), nil
}

// bindingAAD ties a wrapped key to its channel, member and epoch so a row
// cannot be copied to another slot.
func bindingAAD(channelID, userID string, epoch int64) []byte {
	return fmt.Appendf(nil, "%s|%s|%d", channelID, userID, epoch)
}

// WrapForMember seals key to memberPublicKey. issuerID names the member who
// performed the wrap.
func (m *Manager) WrapForMember(channelID string, epoch int64, key ChannelKey, issuerID, memberID string, memberPublicKey []byte) (*models.WrappedChannelKey, error) {
	if len(key) != common.KeySize {
		return nil, fmt.Errorf("channel key must be %d bytes: %w", common.KeySize, common.ErrInvalidInput)
	}
	if channelID == "" || memberID == "" || issuerID == "" || epoch < 1 {
		return nil, fmt.Errorf("wrap target: %w", common.ErrInvalidInput)
	}

	sealed, err := cryptox.Seal(key, memberPublicKey, bindingAAD(channelID, memberID, epoch))
	if err != nil {
		return nil, err
	}

	return &models.WrappedChannelKey{
		ChannelID:  channelID,
		UserID:     memberID,
		Epoch:      epoch,
		WrappedKey: sealed,
		IssuerID:   issuerID,
		CreatedAt:  m.now().UTC(),
	}, nil
}

// FanOut wraps key for every member in members (user id -> public key),
// returning rows sorted by user id. It stops at the first failure.
func (m *Manager) FanOut(channelID string, epoch int64, key ChannelKey, issuerID string, members map[string][]byte) ([]*models.WrappedChannelKey, error) {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*models.WrappedChannelKey, 0, len(ids))
	for _, id := range ids {
		w, err := m.WrapForMember(channelID, epoch, key, issuerID, id, members[id])
		if err != nil {
			return nil, fmt.Errorf("wrap for %s: %w", id, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Unwrap recovers the channel key from a wrapped row with the member's
// private key. If the row was not sealed to this key pair, or was altered,
// the result is common.ErrAccessDenied.
func (m *Manager) Unwrap(wrapped *models.WrappedChannelKey, privateKey []byte) (ChannelKey, error) {
	if err := wrapped.Validate(); err != nil {
		return nil, err
	}

	key, err := cryptox.Open(wrapped.WrappedKey, privateKey, bindingAAD(wrapped.ChannelID, wrapped.UserID, wrapped.Epoch))
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			return nil, common.ErrAccessDenied
		}
		return nil, err
	}
	return ChannelKey(key), nil
}
