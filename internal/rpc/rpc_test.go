package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage/storetest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodec_RejectsForeignTypes(t *testing.T) {
	_, err := Codec{}.Marshal("plain string")
	require.ErrorIs(t, err, common.ErrInvalidInput)

	var s string
	require.ErrorIs(t, Codec{}.Unmarshal([]byte{}, &s), common.ErrInvalidInput)
	assert.Equal(t, CodecName, Codec{}.Name())
}

func TestCodec_RequestsCarryNestedRecords(t *testing.T) {
	w := storetest.Wrapped(t, "c1", "bob", 4)
	in := &PutWrappedKeyRequest{ChannelID: "c1", UserID: "bob", Key: w}

	data, err := Codec{}.Marshal(in)
	require.NoError(t, err)

	var out PutWrappedKeyRequest
	require.NoError(t, Codec{}.Unmarshal(data, &out))
	assert.Equal(t, "c1", out.ChannelID)
	assert.Equal(t, "bob", out.UserID)
	require.NotNil(t, out.Key)
	assert.Equal(t, w.WrappedKey, out.Key.WrappedKey)
	assert.Equal(t, int64(4), out.Key.Epoch)
}

func TestCodec_MissingNestedRecordStaysNil(t *testing.T) {
	data, err := (&PutUserKeyMaterialRequest{UserID: "alice"}).MarshalBinary()
	require.NoError(t, err)

	var out PutUserKeyMaterialRequest
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, "alice", out.UserID)
	assert.Nil(t, out.Material)
}

func TestPageRequest_ZeroCursorSurvives(t *testing.T) {
	data, err := (&PageRequest{ChannelID: "c1", Limit: 20}).MarshalBinary()
	require.NoError(t, err)

	var out PageRequest
	require.NoError(t, out.UnmarshalBinary(data))
	assert.True(t, out.BeforeTime.IsZero())
	assert.Empty(t, out.BeforeID)
	assert.Equal(t, int64(20), out.Limit)

	at := storetest.Base.Add(3)
	data, err = (&PageRequest{ChannelID: "c1", BeforeTime: at, BeforeID: "m9", Limit: 1}).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, out.UnmarshalBinary(data))
	assert.True(t, at.Equal(out.BeforeTime))
	assert.Equal(t, "m9", out.BeforeID)
}

func TestLists(t *testing.T) {
	msgs := &MessageList{Items: []*models.EncryptedMessage{
		storetest.Message(t, "m1", "c1", 0),
		storetest.Message(t, "m2", "c1", 1),
	}}
	data, err := msgs.MarshalBinary()
	require.NoError(t, err)

	var got MessageList
	require.NoError(t, got.UnmarshalBinary(data))
	if diff := cmp.Diff(msgs.Items, got.Items); diff != "" {
		t.Fatalf("message list mismatch (-want +got):\n%s", diff)
	}

	names := &StringList{Values: []string{"alice", "", "bob"}}
	data, err = names.MarshalBinary()
	require.NoError(t, err)
	var gotNames StringList
	require.NoError(t, gotNames.UnmarshalBinary(data))
	assert.Equal(t, names.Values, gotNames.Values)

	var empty ChannelList
	require.NoError(t, empty.UnmarshalBinary(nil))
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("get: %w", common.ErrorNotFound), codes.NotFound},
		{common.ErrorAlreadyExists, codes.AlreadyExists},
		{common.ErrInvalidInput, codes.InvalidArgument},
		{common.ErrAccessDenied, codes.PermissionDenied},
		{common.ErrInvalidToken, codes.Unauthenticated},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, c := range cases {
		st := ToStatus(c.err)
		assert.Equal(t, c.code, status.Code(st), c.err.Error())
	}

	require.NoError(t, ToStatus(nil))
	already := status.Error(codes.Aborted, "x")
	assert.Equal(t, already, ToStatus(already))
	// internal details never leave the server
	assert.NotContains(t, ToStatus(errors.New("disk on fire")).Error(), "disk")
}

func TestFromStatus(t *testing.T) {
	assert.ErrorIs(t, FromStatus(status.Error(codes.NotFound, "x")), common.ErrorNotFound)
	assert.ErrorIs(t, FromStatus(status.Error(codes.PermissionDenied, "x")), common.ErrAccessDenied)
	assert.ErrorIs(t, FromStatus(status.Error(codes.Unavailable, "x")), common.ErrUnavailable)
	assert.ErrorIs(t, FromStatus(status.Error(codes.DeadlineExceeded, "x")), common.ErrUnavailable)
	assert.ErrorIs(t, FromStatus(status.Error(codes.Canceled, "x")), context.Canceled)
	assert.ErrorIs(t, FromStatus(ToStatus(common.ErrInvalidInput)), common.ErrInvalidInput)

	plain := errors.New("plain")
	assert.Equal(t, plain, FromStatus(plain))
	assert.NoError(t, FromStatus(nil))
	assert.Error(t, FromStatus(status.Error(codes.Internal, "boom")))
}
