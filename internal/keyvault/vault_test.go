package keyvault

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = cryptox.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1}

func register(t *testing.T, v *Vault, userID, password string) *models.UserKeyMaterial {
	t.Helper()
	e, err := v.Register(context.Background(), userID, []byte(password))
	require.NoError(t, err)
	e.Discard()
	return e.Material
}

func TestRegisterUnlock_Scenario(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)

	e, err := v.Register(ctx, "alice", []byte("correct-horse-1"))
	require.NoError(t, err)
	material := e.Material
	e.Discard()
	require.NoError(t, material.Validate())
	assert.Equal(t, "alice", material.UserID)
	assert.Equal(t, fastParams, material.KDF)
	assert.Equal(t, Locked, v.State(), "register must not unlock")

	require.NoError(t, v.Unlock(ctx, "alice", []byte("correct-horse-1"), material))
	assert.Equal(t, Unlocked, v.State())
	assert.Equal(t, "alice", v.UserID())

	pub, err := v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, material.PublicKey, pub)

	require.NoError(t, v.WithPrivateKey(func(priv []byte) error {
		assert.True(t, cryptox.Matches(material.PublicKey, priv))
		return nil
	}))

	v.Lock()
	err = v.Unlock(ctx, "alice", []byte("wrong-password"), material)
	require.ErrorIs(t, err, common.ErrAuthenticationFailed)
	assert.Equal(t, Locked, v.State())
}

func TestUnlock_RejectsForeignOrBrokenMaterial(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)

	material := register(t, v, "alice", "pw")

	err := v.Unlock(ctx, "bob", []byte("pw"), material)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	err = v.Unlock(ctx, "alice", []byte("pw"), nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	// renaming the owner breaks the AEAD binding
	moved := *material
	moved.UserID = "mallory"
	err = v.Unlock(ctx, "mallory", []byte("pw"), &moved)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	err = v.Unlock(ctx, "alice", nil, material)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, Locked, v.State())
}

func TestLock_WipesPrivateKey(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	material := register(t, v, "alice", "pw")
	require.NoError(t, v.Unlock(ctx, "alice", []byte("pw"), material))

	var held []byte
	require.NoError(t, v.WithPrivateKey(func(priv []byte) error {
		held = priv
		return nil
	}))

	v.Lock()
	assert.Equal(t, make([]byte, len(held)), held, "backing array must be zeroed")
	assert.Equal(t, Locked, v.State())
	assert.Empty(t, v.UserID())

	_, err := v.PublicKey()
	assert.ErrorIs(t, err, common.ErrLocked)
	assert.ErrorIs(t, v.WithPrivateKey(func([]byte) error { return nil }), common.ErrLocked)
}

func TestResetKeys_AdoptOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	old := register(t, v, "alice", "old-pw")
	require.NoError(t, v.Unlock(ctx, "alice", []byte("old-pw"), old))

	fresh, err := v.ResetKeys(ctx, "alice", []byte("new-pw"))
	require.NoError(t, err)
	assert.NotEqual(t, old.PublicKey, fresh.Material.PublicKey)

	// not adopted yet: the old identity is still active
	pub, err := v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, old.PublicKey, pub)

	require.NoError(t, v.Adopt(fresh))
	pub, err = v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, fresh.Material.PublicKey, pub)
	require.NoError(t, v.WithPrivateKey(func(priv []byte) error {
		assert.True(t, cryptox.Matches(fresh.Material.PublicKey, priv))
		return nil
	}))

	// the new material opens with the new password
	v.Lock()
	require.NoError(t, v.Unlock(ctx, "alice", []byte("new-pw"), fresh.Material))

	require.ErrorIs(t, v.Adopt(fresh), common.ErrInvalidInput, "an enrollment is single use")
}

func TestResetKeys_DiscardKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	old := register(t, v, "alice", "old-pw")
	require.NoError(t, v.Unlock(ctx, "alice", []byte("old-pw"), old))

	fresh, err := v.ResetKeys(ctx, "alice", []byte("new-pw"))
	require.NoError(t, err)
	fresh.Discard()
	fresh.Discard()

	require.ErrorIs(t, v.Adopt(fresh), common.ErrInvalidInput)
	pub, err := v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, old.PublicKey, pub)
}

func TestRegisterAdopt_DerivesOnce(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	var calls atomic.Int32
	v.derive = func(ctx context.Context, password, salt []byte, p cryptox.KDFParams) ([]byte, error) {
		calls.Add(1)
		return cryptox.AwaitKey(ctx, password, salt, p)
	}

	e, err := v.Register(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, v.Adopt(e))
	assert.Equal(t, Unlocked, v.State())
	assert.Equal(t, int32(1), calls.Load())
}

// gatedDerive blocks the first derivation until release is closed.
func gatedDerive(v *Vault) (started, release chan struct{}) {
	started, release = make(chan struct{}), make(chan struct{})
	var first atomic.Bool
	v.derive = func(ctx context.Context, password, salt []byte, p cryptox.KDFParams) ([]byte, error) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return cryptox.AwaitKey(ctx, password, salt, p)
	}
	return started, release
}

func TestUnlock_AbandonedAttemptCannotClobberNext(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	material := register(t, v, "alice", "pw")
	started, release := gatedDerive(v)

	first := make(chan error, 1)
	go func() { first <- v.Unlock(ctx, "alice", []byte("wrong"), material) }()
	<-started
	v.Lock()

	require.NoError(t, v.Unlock(ctx, "alice", []byte("pw"), material))
	assert.Equal(t, Unlocked, v.State())

	close(release)
	require.ErrorIs(t, <-first, common.ErrAuthenticationFailed)
	assert.Equal(t, Unlocked, v.State(), "stale failure must not lock the vault")
	pub, err := v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, material.PublicKey, pub)
}

func TestUnlock_StaleSuccessIsDropped(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	material := register(t, v, "alice", "pw")
	started, release := gatedDerive(v)

	first := make(chan error, 1)
	go func() { first <- v.Unlock(ctx, "alice", []byte("pw"), material) }()
	<-started
	v.Lock()

	close(release)
	require.ErrorIs(t, <-first, common.ErrLocked)
	assert.Equal(t, Locked, v.State())
	_, err := v.PublicKey()
	require.ErrorIs(t, err, common.ErrLocked)
}

func TestUnlock_BusyWhileDeriving(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	material := register(t, v, "alice", "pw")
	started, release := gatedDerive(v)

	first := make(chan error, 1)
	go func() { first <- v.Unlock(ctx, "alice", []byte("pw"), material) }()
	<-started
	assert.Equal(t, Unlocking, v.State())
	require.ErrorIs(t, v.Unlock(ctx, "alice", []byte("pw"), material), ErrBusy)

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, Unlocked, v.State())
}

func TestOpen_DetectsSwappedPublicKey(t *testing.T) {
	ctx := context.Background()
	v := New(fastParams)
	material := register(t, v, "alice", "pw")

	other, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	material.PublicKey = other.Public

	_, err = Open(ctx, []byte("pw"), material)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "unlocking", Unlocking.String())
	assert.Equal(t, "unlocked", Unlocked.String())
	assert.Equal(t, "state(9)", State(9).String())
}
