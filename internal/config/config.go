// Package config loads runtime configuration from CHOREMANE_-prefixed
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings.
type Config struct {
	APIBaseURL string `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	DBPath     string `envconfig:"DB_PATH" default:"choremane.db"`
	CacheDir   string `envconfig:"CACHE_DIR" default:"cache"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	SyncInterval        time.Duration `envconfig:"SYNC_INTERVAL" default:"1m"`
	VersionPollInterval time.Duration `envconfig:"VERSION_POLL_INTERVAL" default:"5m"`
	HTTPTimeout         time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	MaxRetries          uint64        `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay          time.Duration `envconfig:"RETRY_DELAY" default:"2s"`

	// MetricsAddr serves Prometheus metrics when set (e.g. ":9090").
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `envconfig:"VAPID_SUBSCRIBER"`

	S3Endpoint          string `envconfig:"S3_ENDPOINT"`
	S3Bucket            string `envconfig:"S3_BUCKET"`
	S3Region            string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey         string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey         string `envconfig:"S3_SECRET_KEY"`
	BackupPassphrase    string `envconfig:"BACKUP_PASSPHRASE"`
	BackupRetentionDays int    `envconfig:"BACKUP_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("choremane", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
