package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/rpc"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// accessTokenInterceptor resolves the caller from the access_token
// metadata. Every record method requires it.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		s.logger.Warn(ctx, "rpc refused", "method", info.FullMethod, "error", "missing token")
		return nil, rpc.ToStatus(fmt.Errorf("missing token: %w", common.ErrInvalidToken))
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "rpc refused", "method", info.FullMethod, "error", err.Error())
		return nil, rpc.ToStatus(err)
	}

	return handler(context.WithValue(ctx, userIDKey, userID), req)
}

// loggingInterceptor runs inside accessTokenInterceptor. It logs each call
// and converts domain errors to gRPC status errors.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	st := rpc.ToStatus(err)

	args := []any{"method", info.FullMethod, "duration", time.Since(start), "code", status.Code(st).String()}
	if caller, ok := ctx.Value(userIDKey).(string); ok {
		args = append(args, "user_id", caller)
	}
	switch {
	case err == nil:
		s.logger.Debug(ctx, "rpc", args...)
	case errors.Is(err, common.ErrAccessDenied):
		s.logger.Warn(ctx, "rpc refused", append(args, "error", err.Error())...)
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrInvalidInput):
		s.logger.Info(ctx, "rpc failed", append(args, "error", err.Error())...)
	default:
		s.logger.Error(ctx, "rpc error", append(args, "error", err.Error())...)
	}
	return resp, st
}

func callerFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", common.ErrInvalidToken
	}
	return userID, nil
}
