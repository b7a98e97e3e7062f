// Package sqlstore implements storage.Store over database/sql. The sqlite
// and postgres packages open the connection, run their migrations and hand
// the handle here together with their placeholder dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

// Store is a SQL-backed storage.Store. Timestamps are stored as Unix
// nanoseconds so both dialects order them identically.
type Store struct {
	db      dbx.DBTX
	dialect dbx.Dialect
	close   func() error
}

var _ storage.Store = (*Store)(nil)

// New wraps db. closeFn, when non-nil, is called by Close.
func New(db dbx.DBTX, dialect dbx.Dialect, closeFn func() error) *Store {
	return &Store{db: db, dialect: dialect, close: closeFn}
}

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *Store) PutUserKeyMaterial(ctx context.Context, userID string, m *models.UserKeyMaterial) error {
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return err
	}
	query := `
		INSERT INTO user_key_material
			(user_id, public_key, encrypted_private_key, private_key_iv, salt,
			 kdf_time, kdf_memory_kib, kdf_threads, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			public_key = excluded.public_key,
			encrypted_private_key = excluded.encrypted_private_key,
			private_key_iv = excluded.private_key_iv,
			salt = excluded.salt,
			kdf_time = excluded.kdf_time,
			kdf_memory_kib = excluded.kdf_memory_kib,
			kdf_threads = excluded.kdf_threads,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		m.UserID, m.PublicKey, m.EncryptedPrivateKey, m.PrivateKeyIV, m.Salt,
		int64(m.KDF.Time), int64(m.KDF.MemoryKiB), int64(m.KDF.Threads), nanos(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put user key material: %w", err)
	}
	return nil
}

func (s *Store) GetUserKeyMaterial(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	query := `
		SELECT user_id, public_key, encrypted_private_key, private_key_iv, salt,
			kdf_time, kdf_memory_kib, kdf_threads, updated_at
		FROM user_key_material WHERE user_id = $1
	`
	var (
		m                    models.UserKeyMaterial
		kTime, kMemory, kThr int64
		updated              int64
	)
	err := s.db.QueryRowContext(ctx, s.q(query), userID).Scan(
		&m.UserID, &m.PublicKey, &m.EncryptedPrivateKey, &m.PrivateKeyIV, &m.Salt,
		&kTime, &kMemory, &kThr, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user key material: %w", err)
	}
	m.KDF = cryptox.KDFParams{Time: uint32(kTime), MemoryKiB: uint32(kMemory), Threads: uint8(kThr)}
	m.UpdatedAt = fromNanos(updated)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored key material for %s: %w", userID, err)
	}
	return &m, nil
}

func (s *Store) PutWrappedChannelKey(ctx context.Context, channelID, userID string, w *models.WrappedChannelKey) error {
	if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
		return err
	}
	query := `
		INSERT INTO wrapped_channel_keys (channel_id, user_id, epoch, encrypted_channel_key, issuer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, user_id, epoch) DO UPDATE SET
			encrypted_channel_key = excluded.encrypted_channel_key,
			issuer_id = excluded.issuer_id,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		w.ChannelID, w.UserID, w.Epoch, w.WrappedKey, w.IssuerID, nanos(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("put wrapped channel key: %w", err)
	}
	return nil
}

func (s *Store) GetWrappedChannelKey(ctx context.Context, channelID, userID string) (*models.WrappedChannelKey, error) {
	query := `
		SELECT channel_id, user_id, epoch, encrypted_channel_key, issuer_id, created_at
		FROM wrapped_channel_keys
		WHERE channel_id = $1 AND user_id = $2
		ORDER BY epoch DESC LIMIT 1
	`
	rows, err := s.queryWrapped(ctx, query, channelID, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrorNotFound
	}
	return rows[0], nil
}

func (s *Store) ListWrappedChannelKeys(ctx context.Context, channelID, userID string) ([]*models.WrappedChannelKey, error) {
	query := `
		SELECT channel_id, user_id, epoch, encrypted_channel_key, issuer_id, created_at
		FROM wrapped_channel_keys
		WHERE channel_id = $1 AND user_id = $2
		ORDER BY epoch
	`
	return s.queryWrapped(ctx, query, channelID, userID)
}

func (s *Store) queryWrapped(ctx context.Context, query string, args ...any) ([]*models.WrappedChannelKey, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select wrapped channel keys: %w", err)
	}
	defer rows.Close()

	result := []*models.WrappedChannelKey{}
	for rows.Next() {
		var (
			w       models.WrappedChannelKey
			created int64
		)
		if err := rows.Scan(&w.ChannelID, &w.UserID, &w.Epoch, &w.WrappedKey, &w.IssuerID, &created); err != nil {
			return nil, fmt.Errorf("scan wrapped channel key: %w", err)
		}
		w.CreatedAt = fromNanos(created)
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("stored wrapped key: %w", err)
		}
		result = append(result, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wrapped channel keys: %w", err)
	}
	return result, nil
}

func (s *Store) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	query := `
		SELECT user_id FROM wrapped_channel_keys
		WHERE channel_id = $1
		  AND epoch = (SELECT MAX(epoch) FROM wrapped_channel_keys WHERE channel_id = $1)
		ORDER BY user_id
	`
	rows, err := s.db.QueryContext(ctx, s.q(query), channelID)
	if err != nil {
		return nil, fmt.Errorf("select channel members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel members: %w", err)
	}
	return members, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *models.EncryptedMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO messages (id, channel_id, user_id, key_epoch, encrypted_content, iv, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		m.ID, m.ChannelID, m.UserID, m.KeyEpoch, m.Ciphertext, m.IV, nanos(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorAlreadyExists
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

const messageColumns = `id, channel_id, user_id, key_epoch, encrypted_content, iv, created_at`

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]*models.EncryptedMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages WHERE channel_id = $1
		ORDER BY created_at, id
	`
	return s.queryMessages(ctx, query, channelID)
}

// ListMessagesBefore reads the page newest first so the index bounds the
// scan, then flips it back to ascending order.
func (s *Store) ListMessagesBefore(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]*models.EncryptedMessage, error) {
	limit, err := storage.CheckPageSize(limit)
	if err != nil {
		return nil, err
	}
	var msgs []*models.EncryptedMessage
	if before.IsZero() {
		query := `
			SELECT ` + messageColumns + `
			FROM messages WHERE channel_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		msgs, err = s.queryMessages(ctx, query, channelID, limit)
	} else {
		query := `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1
			  AND (created_at < $2 OR (created_at = $2 AND id < $3))
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		msgs, err = s.queryMessages(ctx, query, channelID, nanos(before.CreatedAt), before.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]*models.EncryptedMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	result := []*models.EncryptedMessage{}
	for rows.Next() {
		var (
			m       models.EncryptedMessage
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.KeyEpoch, &m.Ciphertext, &m.IV, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("stored message %s: %w", m.ID, err)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func (s *Store) PutChannel(ctx context.Context, c *models.Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO channels (id, name, description, is_direct, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_direct = excluded.is_direct,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		c.ID, c.Name, c.Description, c.IsDirect, c.CreatedBy, nanos(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("put channel: %w", err)
	}
	return nil
}

const channelColumns = `c.id, c.name, c.description, c.is_direct, c.created_by, c.created_at`

func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	list, err := s.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels c WHERE c.id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}
	return list[0], nil
}

func (s *Store) ListChannels(ctx context.Context, userID string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + `
		FROM channels c
		WHERE EXISTS (
			SELECT 1 FROM wrapped_channel_keys w
			WHERE w.channel_id = c.id AND w.user_id = $1
			  AND w.epoch = (SELECT MAX(l.epoch) FROM wrapped_channel_keys l WHERE l.channel_id = c.id)
		)
		ORDER BY c.created_at, c.id
	`
	return s.queryChannels(ctx, query, userID)
}

func (s *Store) queryChannels(ctx context.Context, query string, args ...any) ([]*models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}
	defer rows.Close()

	result := []*models.Channel{}
	for rows.Next() {
		var (
			c       models.Channel
			created int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsDirect, &c.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.CreatedAt = fromNanos(created)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return result, nil
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
