// Package keycache keeps the last successfully unlocked user's key material
// in a local SQLite file so the client can unlock while the record store is
// unreachable. Only the password-encrypted private key is stored.
package keycache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const lastUserKey = "last_user"

func materialKey(userID string) string { return "material/" + userID }

type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at dsn.
func Open(ctx context.Context, dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := dbx.Migrate(ctx, db, dbx.SQLite, sub); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return &Cache{db: db}, nil
}

func get(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

// Save stores m and marks its owner as the last user, atomically.
func (c *Cache) Save(ctx context.Context, m *models.UserKeyMaterial) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, c.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := set(ctx, tx, materialKey(m.UserID), data); err != nil {
			return err
		}
		return set(ctx, tx, lastUserKey, []byte(m.UserID))
	})
}

// Load returns the cached material for userID or common.ErrorNotFound.
func (c *Cache) Load(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	data, err := get(ctx, c.db, materialKey(userID))
	if err != nil {
		return nil, err
	}
	var m models.UserKeyMaterial
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("cached material: %w", err)
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("cached material owner mismatch: %w", common.ErrInvalidInput)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("cached material: %w", err)
	}
	return &m, nil
}

// LastUser returns the owner of the most recently saved material.
func (c *Cache) LastUser(ctx context.Context) (string, error) {
	v, err := get(ctx, c.db, lastUserKey)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (c *Cache) Close() error { return c.db.Close() }
