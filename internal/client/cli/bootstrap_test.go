package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/client/config"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.Store = store
	c.DataDir = filepath.Join(t.TempDir(), "state")
	c.KDF = cryptox.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1}
	return c
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, localConfig(t, config.StoreMemory))
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	c := localConfig(t, config.StoreSQLite)
	c.DatabaseDSN = filepath.Join(t.TempDir(), "records.db")
	s, err = OpenStore(ctx, c)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenStore(ctx, localConfig(t, "floppy"))
	require.Error(t, err)
}

func TestBootstrap_RemembersUser(t *testing.T) {
	ctx := context.Background()
	silence(t)
	c := localConfig(t, config.StoreSQLite)

	stubPasswords(t, "pw", "pw", "pw")

	var out bytes.Buffer
	app, cleanup, err := Bootstrap(ctx, c, strings.NewReader("alice\nregister\nexit\n"), &out, logging.Discard())
	require.NoError(t, err)
	app.Run(ctx)
	cleanup()
	assert.Contains(t, out.String(), "User id")
	assert.Contains(t, out.String(), "Registered and logged in")

	// The second start picks alice from the key cache and unlocks from the
	// sqlite records written by the first.
	out.Reset()
	app, cleanup, err = Bootstrap(ctx, c, strings.NewReader("login\nexit\n"), &out, logging.Discard())
	require.NoError(t, err)
	defer cleanup()
	app.Run(ctx)
	assert.NotContains(t, out.String(), "User id")
	assert.Contains(t, out.String(), "Welcome to gophchat, alice")
	assert.Contains(t, out.String(), "Logged in")
}
