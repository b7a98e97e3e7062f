// Package grpc exposes a storage.Store as the gophchat.RecordStore gRPC
// service. The server authenticates callers with access tokens and
// enforces who may read or write which record; it never handles keys or
// plaintext.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/rpc"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	store     storage.Store
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.RecordStoreServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, store storage.Store, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		store:     store,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer builds a *grpc.Server with the record service registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor, s.loggingInterceptor),
	)
	rpc.RegisterRecordStoreServer(srv, s)
	return srv
}

// Run listens on the configured address until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	<-stopped
	return nil
}
