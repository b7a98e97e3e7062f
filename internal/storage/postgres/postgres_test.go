package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/sqlstore"
	"github.com/dmitrijs2005/gophchat/internal/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return New(db), mock, db
}

func TestAppendMessage_Inserted(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	m := storetest.Message(t, "m1", "c1", 0)
	mock.ExpectExec(`INSERT INTO messages \(id, channel_id, user_id, key_epoch, encrypted_content, iv, created_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)\s+ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("m1", "c1", "alice", int64(1), m.Ciphertext, m.IV, m.CreatedAt.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AppendMessage(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessage_Duplicate(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO messages`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AppendMessage(context.Background(), storetest.Message(t, "m1", "c1", 0))
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestAppendMessage_DBError(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO messages`).WillReturnError(boom)

	err := s.AppendMessage(context.Background(), storetest.Message(t, "m1", "c1", 0))
	require.ErrorIs(t, err, boom)
}

func TestAppendMessage_InvalidNeverReachesDB(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	m := storetest.Message(t, "m1", "c1", 0)
	m.KeyEpoch = 0
	require.ErrorIs(t, s.AppendMessage(context.Background(), m), common.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserKeyMaterial_NotFound(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM user_key_material WHERE user_id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserKeyMaterial(context.Background(), "ghost")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func materialColumns() []string {
	return []string{"user_id", "public_key", "encrypted_private_key", "private_key_iv", "salt",
		"kdf_time", "kdf_memory_kib", "kdf_threads", "updated_at"}
}

func TestGetUserKeyMaterial_Row(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	m := storetest.Material(t, "alice")
	mock.ExpectQuery(`FROM user_key_material`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(materialColumns()).AddRow(
			"alice", m.PublicKey, m.EncryptedPrivateKey, m.PrivateKeyIV, m.Salt,
			int64(1), int64(1024), int64(1), m.UpdatedAt.UnixNano()))

	got, err := s.GetUserKeyMaterial(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, m.PublicKey, got.PublicKey)
	assert.Equal(t, m.KDF, got.KDF)
	assert.True(t, m.UpdatedAt.Equal(got.UpdatedAt))
}

func TestGetUserKeyMaterial_CorruptRow(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	m := storetest.Material(t, "alice")
	mock.ExpectQuery(`FROM user_key_material`).
		WillReturnRows(sqlmock.NewRows(materialColumns()).AddRow(
			"alice", m.PublicKey, []byte("short"), m.PrivateKeyIV, m.Salt,
			int64(1), int64(1024), int64(1), int64(0)))

	_, err := s.GetUserKeyMaterial(context.Background(), "alice")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPutWrappedChannelKey_Upsert(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	w := storetest.Wrapped(t, "c1", "bob", 3)
	mock.ExpectExec(`INSERT INTO wrapped_channel_keys \(channel_id, user_id, epoch, encrypted_channel_key, issuer_id, created_at\).* ON CONFLICT \(channel_id, user_id, epoch\) DO UPDATE SET`).
		WithArgs("c1", "bob", int64(3), w.WrappedKey, "issuer", w.CreatedAt.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.PutWrappedChannelKey(context.Background(), "c1", "bob", w))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWrappedChannelKey_LatestOrNotFound(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	cols := []string{"channel_id", "user_id", "epoch", "encrypted_channel_key", "issuer_id", "created_at"}
	w := storetest.Wrapped(t, "c1", "bob", 2)

	mock.ExpectQuery(`FROM wrapped_channel_keys\s+WHERE channel_id = \$1 AND user_id = \$2\s+ORDER BY epoch DESC LIMIT 1`).
		WithArgs("c1", "bob").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c1", "bob", int64(2), w.WrappedKey, "issuer", int64(0)))
	mock.ExpectQuery(`FROM wrapped_channel_keys`).
		WithArgs("c1", "carol").
		WillReturnRows(sqlmock.NewRows(cols))

	got, err := s.GetWrappedChannelKey(context.Background(), "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Epoch)
	assert.True(t, got.CreatedAt.IsZero())

	_, err = s.GetWrappedChannelKey(context.Background(), "c1", "carol")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListChannelMembers(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT user_id FROM wrapped_channel_keys .* SELECT MAX\(epoch\)`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice").AddRow("bob"))

	members, err := s.ListChannelMembers(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestListMessages_ScanError(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM messages WHERE channel_id = \$1\s+ORDER BY created_at, id`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))

	_, err := s.ListMessages(context.Background(), "c1")
	require.Error(t, err)
}

func messageColumns() []string {
	return []string{"id", "channel_id", "user_id", "key_epoch", "encrypted_content", "iv", "created_at"}
}

func TestListMessagesBefore_Cursor(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	m1 := storetest.Message(t, "m1", "c1", 0)
	m2 := storetest.Message(t, "m2", "c1", time.Second)
	cursor := storage.Cursor{CreatedAt: storetest.Base.Add(2 * time.Second), ID: "m3"}

	mock.ExpectQuery(`SELECT id, channel_id, user_id, key_epoch, encrypted_content, iv, created_at\s+FROM messages\s+WHERE channel_id = \$1\s+AND \(created_at < \$2 OR \(created_at = \$2 AND id < \$3\)\)\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$4`).
		WithArgs("c1", cursor.CreatedAt.UnixNano(), "m3", 2).
		WillReturnRows(sqlmock.NewRows(messageColumns()).
			AddRow("m2", "c1", "alice", int64(1), m2.Ciphertext, m2.IV, m2.CreatedAt.UnixNano()).
			AddRow("m1", "c1", "alice", int64(1), m1.Ciphertext, m1.IV, m1.CreatedAt.UnixNano()))

	page, err := s.ListMessagesBefore(context.Background(), "c1", cursor, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].ID)
	assert.Equal(t, "m2", page[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesBefore_NewestAndCapped(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM messages WHERE channel_id = \$1\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$2`).
		WithArgs("c1", storage.MaxPageSize).
		WillReturnRows(sqlmock.NewRows(messageColumns()))

	page, err := s.ListMessagesBefore(context.Background(), "c1", storage.Cursor{}, storage.MaxPageSize+1)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = s.ListMessagesBefore(context.Background(), "c1", storage.Cursor{}, -1)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChannels(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	cols := []string{"id", "name", "description", "is_direct", "created_by", "created_at"}
	mock.ExpectQuery(`FROM channels c\s+WHERE EXISTS`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "general", "", false, "alice", storetest.Base.UnixNano()).
			AddRow("c2", "dm", "", true, "bob", storetest.Base.UnixNano()+1))

	list, err := s.ListChannels(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "general", list[0].Name)
	assert.True(t, list[1].IsDirect)
	assert.True(t, storetest.Base.Equal(list[0].CreatedAt))
}
