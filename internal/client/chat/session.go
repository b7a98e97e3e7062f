// Package chat is the client-side engine: it unlocks the user's identity,
// distributes channel keys to members and encrypts and decrypts messages
// against any storage.Store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/channelkeys"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/keyvault"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/messages"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/google/uuid"
)

// MaterialCache keeps key material locally for offline unlock.
type MaterialCache interface {
	Save(ctx context.Context, m *models.UserKeyMaterial) error
	Load(ctx context.Context, userID string) (*models.UserKeyMaterial, error)
}

type Option func(*Session)

// WithCache enables offline unlock from c.
func WithCache(c MaterialCache) Option {
	return func(s *Session) { s.cache = c }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithKDFParams sets the cost used for newly generated key material.
func WithKDFParams(p cryptox.KDFParams) Option {
	return func(s *Session) { s.params = p }
}

type slot struct {
	channelID string
	epoch     int64
}

// Session is one user's view of the chat. It is safe for concurrent use.
type Session struct {
	userID string
	store  storage.Store
	cache  MaterialCache
	logger logging.Logger
	params cryptox.KDFParams
	now    func() time.Time

	vault *keyvault.Vault
	keys  *channelkeys.Manager
	ring  *channelkeys.Keyring
	codec *messages.Codec

	mu sync.Mutex
	// denied remembers rows that did not open with the current identity,
	// keyed by slot, so they are not unwrapped again unless rewritten.
	denied map[slot]string
}

func NewSession(userID string, store storage.Store, opts ...Option) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id: %w", common.ErrInvalidInput)
	}
	s := &Session{
		userID: userID,
		store:  store,
		logger: logging.Discard(),
		params: cryptox.DefaultKDFParams(),
		now:    time.Now,
		keys:   channelkeys.New(),
		ring:   channelkeys.NewKeyring(),
		codec:  messages.NewCodec(),
		denied: make(map[slot]string),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "chat", "user_id", userID)
	s.vault = keyvault.New(s.params)
	return s, nil
}

func (s *Session) UserID() string { return s.userID }

// Unlocked reports whether the private key is in memory.
func (s *Session) Unlocked() bool { return s.vault.State() == keyvault.Unlocked }

func (s *Session) requireUnlocked() error {
	if !s.Unlocked() {
		return common.ErrLocked
	}
	return nil
}

func (s *Session) forget() {
	s.ring.Wipe()
	s.mu.Lock()
	s.denied = make(map[slot]string)
	s.mu.Unlock()
}

func (s *Session) remember(ctx context.Context, m *models.UserKeyMaterial) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, m); err != nil {
		s.logger.Warn(ctx, "Failed to cache key material", "error", err)
	}
}

// Register creates and publishes a new identity protected by password and
// leaves the session unlocked.
func (s *Session) Register(ctx context.Context, password []byte) error {
	_, err := s.store.GetUserKeyMaterial(ctx, s.userID)
	switch {
	case err == nil:
		return fmt.Errorf("user %s: %w", s.userID, common.ErrorAlreadyExists)
	case !errors.Is(err, common.ErrorNotFound):
		return err
	}

	e, err := s.vault.Register(ctx, s.userID, password)
	if err != nil {
		return err
	}
	if err := s.store.PutUserKeyMaterial(ctx, s.userID, e.Material); err != nil {
		e.Discard()
		return fmt.Errorf("publish key material: %w", err)
	}

	s.forget()
	if err := s.vault.Adopt(e); err != nil {
		return err
	}
	s.remember(ctx, e.Material)
	s.logger.Info(ctx, "User registered")
	return nil
}

// Unlock fetches the user's key material and opens it with password. When
// the store is unreachable the cached copy is used instead.
func (s *Session) Unlock(ctx context.Context, password []byte) error {
	offline := false
	m, err := s.store.GetUserKeyMaterial(ctx, s.userID)
	if errors.Is(err, common.ErrUnavailable) && s.cache != nil {
		s.logger.Warn(ctx, "Record store unavailable, using cached key material", "error", err)
		m, err = s.cache.Load(ctx, s.userID)
		offline = true
	}
	if err != nil {
		return err
	}
	if err := storage.CheckUserKeyMaterial(s.userID, m); err != nil {
		return err
	}

	s.forget()
	if err := s.vault.Unlock(ctx, s.userID, password, m); err != nil {
		if errors.Is(err, common.ErrAuthenticationFailed) {
			s.logger.Warn(ctx, "Unlock failed", "error", err)
		}
		return err
	}
	if !offline {
		s.remember(ctx, m)
	}
	s.logger.Info(ctx, "Session unlocked", "offline", offline)
	return nil
}

// Lock wipes the private key and every cached channel key.
func (s *Session) Lock() {
	s.vault.Lock()
	s.forget()
}

// ResetKeys replaces the user's identity with a fresh key pair protected by
// newPassword. Channel keys wrapped to the old identity become unreadable
// until another member wraps them again. If publishing fails the previous
// identity is left untouched.
func (s *Session) ResetKeys(ctx context.Context, newPassword []byte) error {
	e, err := s.vault.ResetKeys(ctx, s.userID, newPassword)
	if err != nil {
		return err
	}
	if err := s.store.PutUserKeyMaterial(ctx, s.userID, e.Material); err != nil {
		e.Discard()
		return fmt.Errorf("publish key material: %w", err)
	}

	s.forget()
	if err := s.vault.Adopt(e); err != nil {
		return err
	}
	s.remember(ctx, e.Material)
	s.logger.Warn(ctx, "Identity keys reset")
	return nil
}

// absorb unwraps every row not yet in the keyring. Rows sealed to another
// identity are logged once and skipped.
func (s *Session) absorb(ctx context.Context, rows []*models.WrappedChannelKey) error {
	for _, w := range rows {
		if w.UserID != s.userID {
			continue
		}
		if _, ok := s.ring.Get(w.ChannelID, w.Epoch); ok {
			continue
		}
		at := slot{w.ChannelID, w.Epoch}
		s.mu.Lock()
		prev, seen := s.denied[at]
		s.mu.Unlock()
		if seen && prev == string(w.WrappedKey) {
			continue
		}

		var key channelkeys.ChannelKey
		err := s.vault.WithPrivateKey(func(priv []byte) error {
			var err error
			key, err = s.keys.Unwrap(w, priv)
			return err
		})
		switch {
		case errors.Is(err, common.ErrAccessDenied):
			s.logger.Warn(ctx, "Channel key is not addressed to the current identity",
				"channel_id", w.ChannelID, "epoch", w.Epoch, "issuer_id", w.IssuerID)
			s.mu.Lock()
			s.denied[at] = string(w.WrappedKey)
			s.mu.Unlock()
		case err != nil:
			return err
		default:
			s.ring.Put(w.ChannelID, w.Epoch, key)
		}
	}
	return nil
}

func (s *Session) refresh(ctx context.Context, channelID string) error {
	rows, err := s.store.ListWrappedChannelKeys(ctx, channelID, s.userID)
	if err != nil {
		return err
	}
	return s.absorb(ctx, rows)
}

// currentKey returns the key at the channel's latest epoch. Only current
// members hold it.
func (s *Session) currentKey(ctx context.Context, channelID string) (channelkeys.ChannelKey, int64, []string, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, 0, nil, err
	}
	members, err := s.store.ListChannelMembers(ctx, channelID)
	if err != nil {
		return nil, 0, nil, err
	}
	if !slices.Contains(members, s.userID) {
		return nil, 0, nil, fmt.Errorf("%s is not a member of %s: %w", s.userID, channelID, common.ErrAccessDenied)
	}
	own, err := s.store.GetWrappedChannelKey(ctx, channelID, s.userID)
	if err != nil {
		return nil, 0, nil, err
	}
	if err := s.absorb(ctx, []*models.WrappedChannelKey{own}); err != nil {
		return nil, 0, nil, err
	}
	key, ok := s.ring.Get(channelID, own.Epoch)
	if !ok {
		return nil, 0, nil, fmt.Errorf("key for %s epoch %d: %w", channelID, own.Epoch, common.ErrAccessDenied)
	}
	return key, own.Epoch, members, nil
}

// CurrentEpoch returns the channel key generation the session would send
// with, or common.ErrAccessDenied when it cannot open it.
func (s *Session) CurrentEpoch(ctx context.Context, channelID string) (int64, error) {
	_, epoch, _, err := s.currentKey(ctx, channelID)
	return epoch, err
}

func (s *Session) publicKey(ctx context.Context, userID string) ([]byte, error) {
	if userID == s.userID {
		return s.vault.PublicKey()
	}
	m, err := s.store.GetUserKeyMaterial(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("key material of %s: %w", userID, err)
	}
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return nil, err
	}
	return m.PublicKey, nil
}

func (s *Session) createChannel(ctx context.Context, c *models.Channel, peers ...string) (*models.Channel, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.PutChannel(ctx, c); err != nil {
		return nil, err
	}

	key, err := s.keys.CreateChannelKey()
	if err != nil {
		return nil, err
	}
	pub, err := s.vault.PublicKey()
	if err != nil {
		return nil, err
	}
	own, err := s.keys.WrapForMember(c.ID, 1, key, s.userID, s.userID, pub)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutWrappedChannelKey(ctx, c.ID, s.userID, own); err != nil {
		return nil, err
	}
	s.ring.Put(c.ID, 1, key)

	for _, p := range peers {
		if err := s.AddMember(ctx, c.ID, p); err != nil {
			return c, err
		}
	}
	s.logger.Info(ctx, "Channel created", "channel_id", c.ID, "direct", c.IsDirect)
	return c, nil
}

// CreateChannel creates a group channel with the caller as its only member.
func (s *Session) CreateChannel(ctx context.Context, name, description string) (*models.Channel, error) {
	return s.createChannel(ctx, &models.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   s.userID,
		CreatedAt:   s.now().UTC(),
	})
}

// CreateDirect creates a two-member channel with peerID.
func (s *Session) CreateDirect(ctx context.Context, peerID string) (*models.Channel, error) {
	if peerID == "" || peerID == s.userID {
		return nil, fmt.Errorf("direct peer %q: %w", peerID, common.ErrInvalidInput)
	}
	pair := []string{s.userID, peerID}
	sort.Strings(pair)
	return s.createChannel(ctx, &models.Channel{
		ID:        uuid.NewString(),
		Name:      pair[0] + "+" + pair[1],
		IsDirect:  true,
		CreatedBy: s.userID,
		CreatedAt: s.now().UTC(),
	}, peerID)
}

// AddMember wraps the current channel key for memberID. Adding an existing
// member rewrites their row, which is how a member is re-invited after a
// key reset.
func (s *Session) AddMember(ctx context.Context, channelID, memberID string) error {
	key, epoch, _, err := s.currentKey(ctx, channelID)
	if err != nil {
		return err
	}
	pub, err := s.publicKey(ctx, memberID)
	if err != nil {
		return err
	}
	w, err := s.keys.WrapForMember(channelID, epoch, key, s.userID, memberID, pub)
	if err != nil {
		return err
	}
	if err := s.store.PutWrappedChannelKey(ctx, channelID, memberID, w); err != nil {
		return err
	}
	s.logger.Info(ctx, "Member added", "channel_id", channelID, "member_id", memberID, "epoch", epoch)
	return nil
}

// RemoveMember rotates the channel to a new key generation wrapped for every
// remaining member. The removed member keeps the older generations.
func (s *Session) RemoveMember(ctx context.Context, channelID, memberID string) error {
	if memberID == s.userID {
		return fmt.Errorf("cannot remove yourself from %s: %w", channelID, common.ErrInvalidInput)
	}
	_, epoch, members, err := s.currentKey(ctx, channelID)
	if err != nil {
		return err
	}
	if !slices.Contains(members, memberID) {
		return fmt.Errorf("%s in %s: %w", memberID, channelID, common.ErrorNotFound)
	}

	pubs := make(map[string][]byte, len(members)-1)
	for _, id := range members {
		if id == memberID {
			continue
		}
		pub, err := s.publicKey(ctx, id)
		if err != nil {
			return err
		}
		pubs[id] = pub
	}

	key, err := s.keys.CreateChannelKey()
	if err != nil {
		return err
	}
	next := epoch + 1
	rows, err := s.keys.FanOut(channelID, next, key, s.userID, pubs)
	if err != nil {
		key.Wipe()
		return err
	}
	// The issuer's own row goes first; it is what authorizes the rest.
	slices.SortStableFunc(rows, func(a, b *models.WrappedChannelKey) int {
		switch {
		case a.UserID == s.userID:
			return -1
		case b.UserID == s.userID:
			return 1
		}
		return 0
	})

	for i, w := range rows {
		if err := s.store.PutWrappedChannelKey(ctx, channelID, w.UserID, w); err != nil {
			if i == 0 {
				key.Wipe()
			}
			return fmt.Errorf("rotate %s to epoch %d: %w", channelID, next, err)
		}
		if i == 0 {
			s.ring.Put(channelID, next, key)
		}
	}
	s.logger.Info(ctx, "Member removed", "channel_id", channelID, "member_id", memberID, "epoch", next)
	return nil
}

// SendMessage encrypts text under the current channel key and appends it.
func (s *Session) SendMessage(ctx context.Context, channelID, text string) (*models.EncryptedMessage, error) {
	key, epoch, _, err := s.currentKey(ctx, channelID)
	if err != nil {
		return nil, err
	}
	msg, err := s.codec.Encode(channelID, s.userID, epoch, []byte(text), key)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Message sent", "channel_id", channelID, "message_id", msg.ID, "epoch", epoch)
	return msg, nil
}

// ReceiveMessages returns the channel history in order. Messages whose key
// the session cannot open come back as placeholders with
// common.ErrDecryptionFailed.
func (s *Session) ReceiveMessages(ctx context.Context, channelID string) ([]models.DecodedMessage, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, channelID, msgs)
}

// ReceiveMessagesPage is ReceiveMessages bounded to the limit newest
// messages older than before. Start with storage.Cursor{} and continue
// from the oldest message of each page:
//
//	storage.Cursor{CreatedAt: page[0].CreatedAt, ID: page[0].ID}
func (s *Session) ReceiveMessagesPage(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]models.DecodedMessage, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessagesBefore(ctx, channelID, before, limit)
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, channelID, msgs)
}

func (s *Session) decode(ctx context.Context, channelID string, msgs []*models.EncryptedMessage) ([]models.DecodedMessage, error) {
	if err := s.refresh(ctx, channelID); err != nil {
		return nil, err
	}
	return s.codec.DecodeAll(ctx, msgs, s.ring.Snapshot(channelID))
}

// Channels lists the channels the user currently belongs to.
func (s *Session) Channels(ctx context.Context) ([]*models.Channel, error) {
	return s.store.ListChannels(ctx, s.userID)
}

// Members lists the current members of channelID.
func (s *Session) Members(ctx context.Context, channelID string) ([]string, error) {
	return s.store.ListChannelMembers(ctx, channelID)
}
