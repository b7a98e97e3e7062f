package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/client/chat"
	"github.com/dmitrijs2005/gophchat/internal/client/config"
	"github.com/dmitrijs2005/gophchat/internal/client/keycache"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/memory"
	"github.com/dmitrijs2005/gophchat/internal/storage/objectstore"
	"github.com/dmitrijs2005/gophchat/internal/storage/postgres"
	"github.com/dmitrijs2005/gophchat/internal/storage/remote"
	"github.com/dmitrijs2005/gophchat/internal/storage/sqlite"
)

// OpenStore opens the record store selected by c.Store.
func OpenStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Store {
	case config.StoreRemote:
		return remote.Dial(c.ServerEndpointAddr, c.AccessToken)
	case config.StoreSQLite:
		return sqlite.Open(ctx, c.RecordsDSN())
	case config.StoreMemory:
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.Open(ctx, c.DatabaseDSN)
	case config.StoreS3:
		return objectstore.Open(ctx, c.S3)
	}
	return nil, fmt.Errorf("unknown store %q", c.Store)
}

// Bootstrap prepares the data directory, opens the stores and builds an App
// for the configured user, asking for the user id when none is configured
// or remembered. The returned func releases everything.
func Bootstrap(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, logger logging.Logger) (*App, func(), error) {
	dir, err := filex.EnsurePrivateDir(c.DataDir)
	if err != nil {
		return nil, nil, err
	}
	c.DataDir = dir

	cache, err := keycache.Open(ctx, c.KeyCachePath())
	if err != nil {
		return nil, nil, fmt.Errorf("key cache: %w", err)
	}

	logger.Debug(ctx, "Opening record store",
		"store", c.Store,
		"address", c.ServerEndpointAddr,
		"access_token", logging.Secret(c.AccessToken),
	)
	store, err := OpenStore(ctx, c)
	if err != nil {
		_ = cache.Close()
		return nil, nil, fmt.Errorf("record store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn(ctx, "Failed to close record store", "error", err)
		}
		if err := cache.Close(); err != nil {
			logger.Warn(ctx, "Failed to close key cache", "error", err)
		}
	}

	reader := bufio.NewReader(in)
	userID := c.UserID
	if userID == "" {
		userID, err = cache.LastUser(ctx)
		if errors.Is(err, common.ErrorNotFound) {
			userID, err = GetSimpleText(reader, "User id", out)
		}
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	session, err := chat.NewSession(userID, store,
		chat.WithCache(cache),
		chat.WithLogger(logger),
		chat.WithKDFParams(c.KDF),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	app := NewApp(session, reader, out, logger)
	return app, cleanup, nil
}
