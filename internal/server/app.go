// Package server wires configuration, the record backend and the gRPC
// endpoint together and runs them until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/memory"
	"github.com/dmitrijs2005/gophchat/internal/storage/objectstore"
	"github.com/dmitrijs2005/gophchat/internal/storage/postgres"

	gs "github.com/dmitrijs2005/gophchat/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	store  storage.Store
}

// OpenStore opens the backend selected by c.Backend.
func OpenStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		return postgres.Open(ctx, c.DatabaseDSN)
	case config.BackendS3:
		return objectstore.Open(ctx, c.S3)
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	store, err := OpenStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}
	return &App{config: c, logger: logger, store: store}, nil
}

// IssueToken mints an access token for userID with the configured secret.
func IssueToken(c *config.Config, userID string) (string, error) {
	return auth.GenerateToken(userID, []byte(c.SecretKey), c.AccessTokenTTL)
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM/SIGQUIT arrives, then
// closes the store.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	defer func() {
		if err := app.store.Close(); err != nil {
			app.logger.Error(ctx, "Failed to close store", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...",
		"backend", app.config.Backend,
		"address", app.config.EndpointAddrGRPC,
		"secret_key", logging.Secret(app.config.SecretKey),
	)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.store, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		return err
	}
	return nil
}
