package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/dmitrijs2005/gophchat/internal/timex"
)

// JsonConfig mirrors the config file. Absent fields keep their defaults.
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	Backend          string         `json:"backend"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	AccessTokenTTL   timex.Duration `json:"access_token_ttl"`
	LogLevel         string         `json:"log_level"`
	S3Endpoint       string         `json:"s3_endpoint"`
	S3Region         string         `json:"s3_region"`
	S3Bucket         string         `json:"s3_bucket"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setIf(&cfg.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&cfg.Backend, c.Backend)
	setIf(&cfg.DatabaseDSN, c.DatabaseDSN)
	setIf(&cfg.SecretKey, c.SecretKey)
	if c.AccessTokenTTL.Duration != 0 {
		cfg.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	setIf(&cfg.S3.Endpoint, c.S3Endpoint)
	setIf(&cfg.S3.Region, c.S3Region)
	setIf(&cfg.S3.Bucket, c.S3Bucket)
	setIf(&cfg.S3.AccessKey, c.S3AccessKey)
	setIf(&cfg.S3.SecretKey, c.S3SecretKey)
	return nil
}
