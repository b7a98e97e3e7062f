// Package config assembles client settings from defaults, an optional JSON
// file (-c/-config) and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/storage/objectstore"
)

// Stores the client can talk to. Everything except StoreRemote opens the
// backend directly and is meant for single-machine use.
const (
	StoreRemote   = "remote"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

type Config struct {
	ServerEndpointAddr string
	UserID             string
	Store              string
	// DatabaseDSN is a SQLite path or PostgreSQL URL depending on Store.
	// Empty means records.db inside DataDir.
	DatabaseDSN string
	// AccessToken authenticates against the record server.
	AccessToken string
	DataDir     string
	LogLevel    slog.Level
	KDF         cryptox.KDFParams
	S3          objectstore.Config
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Store = StoreRemote
	c.DataDir = ".gophchat"
	c.LogLevel = slog.LevelWarn
	c.KDF = cryptox.DefaultKDFParams()
	c.S3 = objectstore.Config{
		Endpoint:  "http://127.0.0.1:9000/",
		Region:    "us-east-1",
		Bucket:    "gophchat",
		AccessKey: "admin",
		SecretKey: "secretpassword",
	}
}

// KeyCachePath is where offline key material is kept.
func (c *Config) KeyCachePath() string {
	return filepath.Join(c.DataDir, "keys.db")
}

// RecordsDSN resolves DatabaseDSN for the sqlite store.
func (c *Config) RecordsDSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return filepath.Join(c.DataDir, "records.db")
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreRemote:
		if c.AccessToken == "" {
			return fmt.Errorf("remote store needs an access token (-k)")
		}
	case StoreSQLite, StoreMemory, StoreS3:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("postgres store needs a DSN (-d)")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if err := c.KDF.Validate(); err != nil {
		return err
	}
	return nil
}

// Load builds the configuration from args (os.Args[1:]).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
