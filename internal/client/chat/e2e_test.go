package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	grpcserver "github.com/dmitrijs2005/gophchat/internal/server/grpc"
	"github.com/dmitrijs2005/gophchat/internal/storage/memory"
	"github.com/dmitrijs2005/gophchat/internal/storage/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const e2eSecret = "e2e-secret"

func dialServer(t *testing.T) func(userID string) *remote.Store {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcserver.NewGRPCServer("bufnet", logging.Discard(), memory.New(), e2eSecret)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return func(userID string) *remote.Store {
		tok, err := auth.GenerateToken(userID, []byte(e2eSecret), time.Hour)
		require.NoError(t, err)
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return remote.NewWithConn(conn, tok)
	}
}

func TestSession_ThroughServer(t *testing.T) {
	ctx := context.Background()
	connect := dialServer(t)

	alice := registered(t, "alice", connect("alice"))
	bob := registered(t, "bob", connect("bob"))
	carol := registered(t, "carol", connect("carol"))

	ch, err := alice.CreateChannel(ctx, "general", "team room")
	require.NoError(t, err)
	require.NoError(t, alice.AddMember(ctx, ch.ID, "bob"))
	require.NoError(t, alice.AddMember(ctx, ch.ID, "carol"))

	_, err = alice.SendMessage(ctx, ch.ID, "hello")
	require.NoError(t, err)

	got, err := bob.ReceiveMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, plaintexts(t, got))

	// Bob is not the creator but holds the latest epoch, so he may rotate.
	require.NoError(t, bob.RemoveMember(ctx, ch.ID, "carol"))
	_, err = alice.SendMessage(ctx, ch.ID, "carol is gone")
	require.NoError(t, err)

	got, err = carol.ReceiveMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "<undecryptable>"}, plaintexts(t, got))

	_, err = carol.SendMessage(ctx, ch.ID, "hey")
	require.ErrorIs(t, err, common.ErrAccessDenied)
	require.ErrorIs(t, carol.AddMember(ctx, ch.ID, "carol"), common.ErrAccessDenied)

	dave := registered(t, "dave", connect("dave"))
	_, err = dave.ReceiveMessages(ctx, ch.ID)
	require.ErrorIs(t, err, common.ErrAccessDenied)

	chans, err := alice.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, ch.ID, chans[0].ID)
}

func TestSession_ThroughServerReset(t *testing.T) {
	ctx := context.Background()
	connect := dialServer(t)

	alice := registered(t, "alice", connect("alice"))
	bob := registered(t, "bob", connect("bob"))

	ch, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, bob.ResetKeys(ctx, []byte("fresh")))
	_, err = bob.SendMessage(ctx, ch.ID, "hi")
	require.ErrorIs(t, err, common.ErrAccessDenied)

	require.NoError(t, alice.AddMember(ctx, ch.ID, "bob"))
	_, err = bob.SendMessage(ctx, ch.ID, "hi")
	require.NoError(t, err)
}
