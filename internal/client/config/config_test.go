package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load([]string{"-k", "tok"})
	require.NoError(t, err)

	want := defaults()
	want.AccessToken = "tok"
	assert.Empty(t, cmp.Diff(want, c))
	assert.Equal(t, filepath.Join(".gophchat", "keys.db"), c.KeyCachePath())
	assert.Equal(t, filepath.Join(".gophchat", "records.db"), c.RecordsDSN())
}

func TestLoad_Layering(t *testing.T) {
	path := writeJSON(t, `{
		"user_id": "alice",
		"store": "sqlite",
		"data_dir": "/tmp/chat",
		"log_level": "error",
		"kdf": {"kdf_time": 2, "kdf_memory_kib": 2048, "kdf_threads": 2},
		"s3_bucket": "chat-dev"
	}`)

	c, err := Load([]string{"-c", path, "-u", "bob", "-d", "/tmp/chat/r.db", "-kt", "5", "-v", "debug", "unrelated"})
	require.NoError(t, err)

	assert.Equal(t, "bob", c.UserID)
	assert.Equal(t, StoreSQLite, c.Store)
	assert.Equal(t, "/tmp/chat", c.DataDir)
	assert.Equal(t, "/tmp/chat/r.db", c.RecordsDSN())
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, cryptox.KDFParams{Time: 5, MemoryKiB: 2048, Threads: 2}, c.KDF)
	assert.Equal(t, "chat-dev", c.S3.Bucket)
	assert.Equal(t, "us-east-1", c.S3.Region)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "remote without token", args: nil},
		{name: "unknown store", args: []string{"-s", "floppy"}},
		{name: "postgres without dsn", args: []string{"-s", "postgres"}},
		{name: "zero kdf", args: []string{"-s", "memory", "-km", "0"}},
		{name: "threads overflow", args: []string{"-s", "memory", "-kp", "300"}},
		{name: "bad level", args: []string{"-s", "memory", "-v", "loud"}},
		{name: "missing json", args: []string{"-s", "memory", "-c", "/does/not/exist.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			require.Error(t, err)
		})
	}
}

func TestLoad_BadJSON(t *testing.T) {
	path := writeJSON(t, `{"store": `)
	_, err := Load([]string{"-c", path})
	require.Error(t, err)
}
