package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func openMemory(t *testing.T) storage.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:gophchat_store_%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	return s
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, openMemory)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutChannel(ctx, storetest.Channel("c1", 0)))
	require.NoError(t, s.AppendMessage(ctx, storetest.Message(t, "m1", "c1", 0)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	c, err := s.GetChannel(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "name-c1", c.Name)

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
