package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/rpc"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

func (s *GRPCServer) PutUserKeyMaterial(ctx context.Context, req *rpc.PutUserKeyMaterialRequest) (*rpc.Empty, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller {
		return nil, denied("%s cannot write key material of %s", caller, req.UserID)
	}
	if err := s.store.PutUserKeyMaterial(ctx, req.UserID, req.Material); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Key material stored", "user_id", caller)
	return &rpc.Empty{}, nil
}

// GetUserKeyMaterial is open to any authenticated caller: issuers need the
// public key and the private half is encrypted to the owner's password.
func (s *GRPCServer) GetUserKeyMaterial(ctx context.Context, req *rpc.UserRequest) (*models.UserKeyMaterial, error) {
	if _, err := callerFromContext(ctx); err != nil {
		return nil, err
	}
	return s.store.GetUserKeyMaterial(ctx, req.UserID)
}

func (s *GRPCServer) PutWrappedChannelKey(ctx context.Context, req *rpc.PutWrappedKeyRequest) (*rpc.Empty, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckWrappedChannelKey(req.ChannelID, req.UserID, req.Key); err != nil {
		return nil, err
	}
	if err := s.authorizeKeyWrite(ctx, caller, req.Key); err != nil {
		return nil, err
	}
	if err := s.store.PutWrappedChannelKey(ctx, req.ChannelID, req.UserID, req.Key); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Channel key wrapped",
		"channel_id", req.ChannelID, "user_id", req.UserID, "epoch", req.Key.Epoch, "issuer_id", caller)
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) GetWrappedChannelKey(ctx context.Context, req *rpc.SlotRequest) (*models.WrappedChannelKey, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller {
		return nil, denied("%s cannot read keys of %s", caller, req.UserID)
	}
	return s.store.GetWrappedChannelKey(ctx, req.ChannelID, req.UserID)
}

func (s *GRPCServer) ListWrappedChannelKeys(ctx context.Context, req *rpc.SlotRequest) (*rpc.WrappedKeyList, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller {
		return nil, denied("%s cannot read keys of %s", caller, req.UserID)
	}
	rows, err := s.store.ListWrappedChannelKeys(ctx, req.ChannelID, req.UserID)
	if err != nil {
		return nil, err
	}
	return &rpc.WrappedKeyList{Items: rows}, nil
}

func (s *GRPCServer) ListChannelMembers(ctx context.Context, req *rpc.ChannelRequest) (*rpc.StringList, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireHistory(ctx, req.ChannelID, caller); err != nil {
		return nil, err
	}
	members, err := s.store.ListChannelMembers(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &rpc.StringList{Values: members}, nil
}

func (s *GRPCServer) AppendMessage(ctx context.Context, m *models.EncryptedMessage) (*rpc.Empty, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.UserID != caller {
		return nil, denied("%s cannot post as %s", caller, m.UserID)
	}
	member, err := s.isMember(ctx, m.ChannelID, caller)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, denied("%s is not a member of %s", caller, m.ChannelID)
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) ListMessages(ctx context.Context, req *rpc.ChannelRequest) (*rpc.MessageList, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireHistory(ctx, req.ChannelID, caller); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &rpc.MessageList{Items: msgs}, nil
}

func (s *GRPCServer) ListMessagesBefore(ctx context.Context, req *rpc.PageRequest) (*rpc.MessageList, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireHistory(ctx, req.ChannelID, caller); err != nil {
		return nil, err
	}
	before := storage.Cursor{CreatedAt: req.BeforeTime, ID: req.BeforeID}
	msgs, err := s.store.ListMessagesBefore(ctx, req.ChannelID, before, int(req.Limit))
	if err != nil {
		return nil, err
	}
	return &rpc.MessageList{Items: msgs}, nil
}

func (s *GRPCServer) PutChannel(ctx context.Context, c *models.Channel) (*rpc.Empty, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeChannelWrite(ctx, caller, c); err != nil {
		return nil, err
	}
	if err := s.store.PutChannel(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Channel stored", "channel_id", c.ID, "user_id", caller)
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) GetChannel(ctx context.Context, req *rpc.ChannelRequest) (*models.Channel, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetChannel(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy == caller {
		return c, nil
	}
	if err := s.requireHistory(ctx, req.ChannelID, caller); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCServer) ListChannels(ctx context.Context, req *rpc.UserRequest) (*rpc.ChannelList, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller {
		return nil, denied("%s cannot list channels of %s", caller, req.UserID)
	}
	chs, err := s.store.ListChannels(ctx, caller)
	if err != nil {
		return nil, err
	}
	return &rpc.ChannelList{Items: chs}, nil
}
