// Package remote is the storage.Store client of the gophchat server. Every
// call carries the caller's access token; records coming back are
// validated before they reach the crypto layer.
package remote

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/rpc"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type Store struct {
	conn   *grpc.ClientConn
	client *rpc.RecordStoreClient
	token  string
}

var _ storage.Store = (*Store)(nil)

// Dial connects to address. The connection is lazy: an unreachable server
// surfaces as common.ErrUnavailable on the first call.
func Dial(address, token string, opts ...grpc.DialOption) (*Store, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}
	s := NewWithConn(conn, token)
	s.conn = conn
	return s, nil
}

// NewWithConn uses an existing connection; Close leaves it open.
func NewWithConn(cc grpc.ClientConnInterface, token string) *Store {
	return &Store{client: rpc.NewRecordStoreClient(cc), token: token}
}

func (s *Store) withAccessToken(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AccessTokenHeaderName, s.token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *Store) PutUserKeyMaterial(ctx context.Context, userID string, m *models.UserKeyMaterial) error {
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return err
	}
	_, err := s.client.PutUserKeyMaterial(s.withAccessToken(ctx), &rpc.PutUserKeyMaterialRequest{UserID: userID, Material: m})
	return rpc.FromStatus(err)
}

func (s *Store) GetUserKeyMaterial(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	m, err := s.client.GetUserKeyMaterial(s.withAccessToken(ctx), &rpc.UserRequest{UserID: userID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return nil, fmt.Errorf("server returned bad key material: %w", err)
	}
	return m, nil
}

func (s *Store) PutWrappedChannelKey(ctx context.Context, channelID, userID string, w *models.WrappedChannelKey) error {
	if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
		return err
	}
	_, err := s.client.PutWrappedChannelKey(s.withAccessToken(ctx), &rpc.PutWrappedKeyRequest{ChannelID: channelID, UserID: userID, Key: w})
	return rpc.FromStatus(err)
}

func (s *Store) GetWrappedChannelKey(ctx context.Context, channelID, userID string) (*models.WrappedChannelKey, error) {
	w, err := s.client.GetWrappedChannelKey(s.withAccessToken(ctx), &rpc.SlotRequest{ChannelID: channelID, UserID: userID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
		return nil, fmt.Errorf("server returned bad wrapped key: %w", err)
	}
	return w, nil
}

func (s *Store) ListWrappedChannelKeys(ctx context.Context, channelID, userID string) ([]*models.WrappedChannelKey, error) {
	resp, err := s.client.ListWrappedChannelKeys(s.withAccessToken(ctx), &rpc.SlotRequest{ChannelID: channelID, UserID: userID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	for _, w := range resp.Items {
		if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
			return nil, fmt.Errorf("server returned bad wrapped key: %w", err)
		}
	}
	return resp.Items, nil
}

func (s *Store) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	resp, err := s.client.ListChannelMembers(s.withAccessToken(ctx), &rpc.ChannelRequest{ChannelID: channelID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return resp.Values, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *models.EncryptedMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.client.AppendMessage(s.withAccessToken(ctx), m)
	return rpc.FromStatus(err)
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]*models.EncryptedMessage, error) {
	resp, err := s.client.ListMessages(s.withAccessToken(ctx), &rpc.ChannelRequest{ChannelID: channelID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	for _, m := range resp.Items {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("server returned bad message: %w", err)
		}
	}
	storage.SortMessages(resp.Items)
	return resp.Items, nil
}

func (s *Store) ListMessagesBefore(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]*models.EncryptedMessage, error) {
	limit, err := storage.CheckPageSize(limit)
	if err != nil {
		return nil, err
	}
	req := &rpc.PageRequest{
		ChannelID:  channelID,
		BeforeTime: before.CreatedAt,
		BeforeID:   before.ID,
		Limit:      int64(limit),
	}
	resp, err := s.client.ListMessagesBefore(s.withAccessToken(ctx), req)
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	for _, m := range resp.Items {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("server returned bad message: %w", err)
		}
	}
	storage.SortMessages(resp.Items)
	if len(resp.Items) > limit {
		resp.Items = resp.Items[len(resp.Items)-limit:]
	}
	return resp.Items, nil
}

func (s *Store) PutChannel(ctx context.Context, c *models.Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := s.client.PutChannel(s.withAccessToken(ctx), c)
	return rpc.FromStatus(err)
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	c, err := s.client.GetChannel(s.withAccessToken(ctx), &rpc.ChannelRequest{ChannelID: channelID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return c, nil
}

func (s *Store) ListChannels(ctx context.Context, userID string) ([]*models.Channel, error) {
	resp, err := s.client.ListChannels(s.withAccessToken(ctx), &rpc.UserRequest{UserID: userID})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return resp.Items, nil
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
