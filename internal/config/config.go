// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all chat server settings. DatabaseURL and RedisAddr are
// optional: without a database the server runs on the in-memory store, and
// without Redis rate limiting is disabled.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`

	// RegistrationCode is the server-wide invite code required to register
	// or log in.
	RegistrationCode string `envconfig:"REGISTRATION_CODE" default:"SHADOW2024"`

	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`

	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"256"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"100000"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
