package grpc

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

func denied(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, common.ErrAccessDenied)...)
}

// isMember reports whether userID holds a row at the channel's latest epoch.
func (s *GRPCServer) isMember(ctx context.Context, channelID, userID string) (bool, error) {
	members, err := s.store.ListChannelMembers(ctx, channelID)
	if err != nil {
		return false, err
	}
	return slices.Contains(members, userID), nil
}

// hasHistory reports whether userID ever held a key for the channel.
func (s *GRPCServer) hasHistory(ctx context.Context, channelID, userID string) (bool, error) {
	rows, err := s.store.ListWrappedChannelKeys(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *GRPCServer) requireHistory(ctx context.Context, channelID, caller string) error {
	ok, err := s.hasHistory(ctx, channelID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return denied("%s has no key for channel %s", caller, channelID)
	}
	return nil
}

// authorizeKeyWrite decides whether caller may store w.
//
// An empty channel accepts its creator's own first row. Otherwise only a
// holder of the latest epoch L may write, either at L (adding a member) or
// at L+1 (rotation). A rotation must start with the issuer's own row, or
// the issuer would lose the right to finish it.
func (s *GRPCServer) authorizeKeyWrite(ctx context.Context, caller string, w *models.WrappedChannelKey) error {
	if w.IssuerID != caller {
		return denied("issuer %s is not the caller", w.IssuerID)
	}

	members, err := s.store.ListChannelMembers(ctx, w.ChannelID)
	if err != nil {
		return err
	}

	if len(members) == 0 {
		ch, err := s.store.GetChannel(ctx, w.ChannelID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case ch.CreatedBy != caller:
			return denied("channel %s belongs to %s", w.ChannelID, ch.CreatedBy)
		}
		if w.UserID != caller || w.Epoch != 1 {
			return denied("first key of %s must be the creator's own at epoch 1", w.ChannelID)
		}
		return nil
	}

	if !slices.Contains(members, caller) {
		return denied("%s is not a member of %s", caller, w.ChannelID)
	}
	own, err := s.store.GetWrappedChannelKey(ctx, w.ChannelID, caller)
	if err != nil {
		return err
	}
	switch w.Epoch {
	case own.Epoch:
		return nil
	case own.Epoch + 1:
		if w.UserID != caller {
			return denied("rotation of %s must start with the issuer's row", w.ChannelID)
		}
		return nil
	default:
		return denied("epoch %d is not writable in %s", w.Epoch, w.ChannelID)
	}
}

func (s *GRPCServer) authorizeChannelWrite(ctx context.Context, caller string, c *models.Channel) error {
	if c.CreatedBy != caller {
		return denied("channel creator %s is not the caller", c.CreatedBy)
	}
	existing, err := s.store.GetChannel(ctx, c.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.CreatedBy != caller {
		return denied("channel %s belongs to %s", c.ID, existing.CreatedBy)
	}
	return nil
}
