package config

import (
	"flag"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags applies the server's flags:
//
//	-a string   gRPC bind address
//	-b string   record backend: memory, postgres or s3
//	-d string   PostgreSQL DSN
//	-s string   JWT signing secret
//	-t int      access token validity, minutes
//	-v          debug logging
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-b", "-d", "-s", "-t", "-v"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EndpointAddrGRPC, "a", cfg.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "record backend (memory|postgres|s3)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	ttl := fs.Int("t", int(cfg.AccessTokenTTL.Minutes()), "access token validity (in minutes)")
	verbose := fs.Bool("v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.AccessTokenTTL = time.Duration(*ttl) * time.Minute
	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return nil
}
