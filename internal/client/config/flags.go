package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags applies the client's flags:
//
//	-a string   record server address
//	-u string   user id
//	-s string   store: remote, sqlite, memory, postgres or s3
//	-d string   database DSN for the sqlite and postgres stores
//	-k string   access token
//	-l string   data directory
//	-v string   log level
//	-kt, -km, -kp  Argon2id time, memory (KiB) and threads for new keys
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-u", "-s", "-d", "-k", "-l", "-v", "-kt", "-km", "-kp"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the record server")
	fs.StringVar(&cfg.UserID, "u", cfg.UserID, "user id")
	fs.StringVar(&cfg.Store, "s", cfg.Store, "store (remote|sqlite|memory|postgres|s3)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.AccessToken, "k", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.DataDir, "l", cfg.DataDir, "data directory")
	level := fs.String("v", cfg.LogLevel.String(), "log level")
	kt := fs.Uint("kt", uint(cfg.KDF.Time), "argon2id iterations")
	km := fs.Uint("km", uint(cfg.KDF.MemoryKiB), "argon2id memory in KiB")
	kp := fs.Uint("kp", uint(cfg.KDF.Threads), "argon2id threads")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if *kp > 255 {
		return fmt.Errorf("argon2id threads out of range: %d", *kp)
	}
	cfg.KDF.Time = uint32(*kt)
	cfg.KDF.MemoryKiB = uint32(*km)
	cfg.KDF.Threads = uint8(*kp)
	return nil
}
