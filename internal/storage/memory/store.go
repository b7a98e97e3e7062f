// Package memory is an in-process storage.Store used by tests, the demo
// mode of the client and the server's "memory" backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

type slot struct {
	channelID string
	userID    string
}

// Store keeps copies of every record so callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.UserKeyMaterial
	wrapped  map[slot]map[int64]models.WrappedChannelKey
	messages map[string][]models.EncryptedMessage
	ids      map[string]struct{}
	channels map[string]models.Channel
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]models.UserKeyMaterial),
		wrapped:  make(map[slot]map[int64]models.WrappedChannelKey),
		messages: make(map[string][]models.EncryptedMessage),
		ids:      make(map[string]struct{}),
		channels: make(map[string]models.Channel),
	}
}

func (s *Store) PutUserKeyMaterial(ctx context.Context, userID string, m *models.UserKeyMaterial) error {
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = cloneMaterial(*m)
	return nil
}

func (s *Store) GetUserKeyMaterial(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	m = cloneMaterial(m)
	return &m, nil
}

func (s *Store) PutWrappedChannelKey(ctx context.Context, channelID, userID string, w *models.WrappedChannelKey) error {
	if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := slot{channelID, userID}
	if s.wrapped[k] == nil {
		s.wrapped[k] = make(map[int64]models.WrappedChannelKey)
	}
	c := *w
	c.WrappedKey = common.CloneBytes(w.WrappedKey)
	s.wrapped[k][w.Epoch] = c
	return nil
}

func (s *Store) GetWrappedChannelKey(ctx context.Context, channelID, userID string) (*models.WrappedChannelKey, error) {
	rows, err := s.ListWrappedChannelKeys(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrorNotFound
	}
	return rows[len(rows)-1], nil
}

func (s *Store) ListWrappedChannelKeys(ctx context.Context, channelID, userID string) ([]*models.WrappedChannelKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	epochs := s.wrapped[slot{channelID, userID}]
	out := make([]*models.WrappedChannelKey, 0, len(epochs))
	for _, w := range epochs {
		w.WrappedKey = common.CloneBytes(w.WrappedKey)
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}

func (s *Store) latestEpochLocked(channelID string) int64 {
	var latest int64
	for k, epochs := range s.wrapped {
		if k.channelID != channelID {
			continue
		}
		for e := range epochs {
			latest = max(latest, e)
		}
	}
	return latest
}

func (s *Store) membersLocked(channelID string) []string {
	latest := s.latestEpochLocked(channelID)
	members := []string{}
	if latest == 0 {
		return members
	}
	for k, epochs := range s.wrapped {
		if k.channelID != channelID {
			continue
		}
		if _, ok := epochs[latest]; ok {
			members = append(members, k.userID)
		}
	}
	sort.Strings(members)
	return members
}

func (s *Store) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.membersLocked(channelID), nil
}

func (s *Store) AppendMessage(ctx context.Context, m *models.EncryptedMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[m.ID]; dup {
		return common.ErrorAlreadyExists
	}
	s.ids[m.ID] = struct{}{}
	c := *m
	c.Ciphertext = common.CloneBytes(m.Ciphertext)
	c.IV = common.CloneBytes(m.IV)
	s.messages[m.ChannelID] = append(s.messages[m.ChannelID], c)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]*models.EncryptedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.messages[channelID]
	out := make([]*models.EncryptedMessage, 0, len(src))
	for _, m := range src {
		m.Ciphertext = common.CloneBytes(m.Ciphertext)
		m.IV = common.CloneBytes(m.IV)
		out = append(out, &m)
	}
	storage.SortMessages(out)
	return out, nil
}

func (s *Store) ListMessagesBefore(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]*models.EncryptedMessage, error) {
	limit, err := storage.CheckPageSize(limit)
	if err != nil {
		return nil, err
	}
	all, err := s.ListMessages(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return storage.PageMessages(all, before, limit), nil
}

func (s *Store) PutChannel(ctx context.Context, c *models.Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = *c
	return nil
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[channelID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (s *Store) ListChannels(ctx context.Context, userID string) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Channel{}
	for id, c := range s.channels {
		members := s.membersLocked(id)
		i := sort.SearchStrings(members, userID)
		if i < len(members) && members[i] == userID {
			out = append(out, &c)
		}
	}
	storage.SortChannels(out)
	return out, nil
}

func (s *Store) Close() error { return nil }

func cloneMaterial(m models.UserKeyMaterial) models.UserKeyMaterial {
	m.PublicKey = common.CloneBytes(m.PublicKey)
	m.EncryptedPrivateKey = common.CloneBytes(m.EncryptedPrivateKey)
	m.PrivateKeyIV = common.CloneBytes(m.PrivateKeyIV)
	m.Salt = common.CloneBytes(m.Salt)
	return m
}
