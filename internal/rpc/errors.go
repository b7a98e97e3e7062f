package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorAlreadyExists, codes.AlreadyExists},
	{common.ErrInvalidInput, codes.InvalidArgument},
	{common.ErrAccessDenied, codes.PermissionDenied},
	{common.ErrInvalidToken, codes.Unauthenticated},
	{common.ErrUnavailable, codes.Unavailable},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// ToStatus converts a domain error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return status.Error(c.code, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}

// FromStatus converts a gRPC status error back into a domain error so
// callers can keep using errors.Is with the common sentinels. Transport
// failures become common.ErrUnavailable.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = common.ErrorNotFound
	case codes.AlreadyExists:
		sentinel = common.ErrorAlreadyExists
	case codes.InvalidArgument:
		sentinel = common.ErrInvalidInput
	case codes.PermissionDenied:
		sentinel = common.ErrAccessDenied
	case codes.Unauthenticated:
		sentinel = common.ErrInvalidToken
	case codes.Unavailable, codes.DeadlineExceeded:
		sentinel = common.ErrUnavailable
	case codes.Canceled:
		sentinel = context.Canceled
	default:
		return fmt.Errorf("remote: %s", st.Message())
	}
	return fmt.Errorf("remote: %s: %w", st.Message(), sentinel)
}
