package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// JsonConfig mirrors the config file. Absent fields keep their defaults.
type JsonConfig struct {
	ServerEndpointAddr string             `json:"server_endpoint_addr"`
	UserID             string             `json:"user_id"`
	Store              string             `json:"store"`
	DatabaseDSN        string             `json:"database_dsn"`
	AccessToken        string             `json:"access_token"`
	DataDir            string             `json:"data_dir"`
	LogLevel           string             `json:"log_level"`
	KDF                *cryptox.KDFParams `json:"kdf"`
	S3Endpoint         string             `json:"s3_endpoint"`
	S3Region           string             `json:"s3_region"`
	S3Bucket           string             `json:"s3_bucket"`
	S3AccessKey        string             `json:"s3_access_key"`
	S3SecretKey        string             `json:"s3_secret_key"`
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

	setIf(&cfg.ServerEndpointAddr, c.ServerEndpointAddr)
	setIf(&cfg.UserID, c.UserID)
	setIf(&cfg.Store, c.Store)
	setIf(&cfg.DatabaseDSN, c.DatabaseDSN)
	setIf(&cfg.AccessToken, c.AccessToken)
	setIf(&cfg.DataDir, c.DataDir)
	if c.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.KDF != nil {
		cfg.KDF = *c.KDF
	}
	setIf(&cfg.S3.Endpoint, c.S3Endpoint)
	setIf(&cfg.S3.Region, c.S3Region)
	setIf(&cfg.S3.Bucket, c.S3Bucket)
	setIf(&cfg.S3.AccessKey, c.S3AccessKey)
	setIf(&cfg.S3.SecretKey, c.S3SecretKey)
	return nil
}
