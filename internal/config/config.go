// Package config provides configuration for the relay service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxReplayBatchSize is the hard upper bound on activities per history
// delivery, imposed by the relay channel. The configured batch size may only
// shrink it.
const MaxReplayBatchSize = 500

// Config holds the relay service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Activity log store (memory://, sqlite file DSN, or postgres://)
	StoreDSN string

	// Relay channel settings
	RelayURL     string
	RelaySecret  string
	RelayTimeout time.Duration

	// History replay
	ReplayBatchSize int

	// Credential issuance
	TrustedOrigins []string

	// Shutdown
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		StoreDSN:        getEnv("STORE_DSN", "file:syncrelay.db?cache=shared&mode=rwc"),
		RelayURL:        getEnv("RELAY_URL", "https://directline.botframework.com"),
		RelaySecret:     getEnv("RELAY_SECRET", ""),
		RelayTimeout:    time.Duration(getEnvInt("RELAY_TIMEOUT_MS", 15000)) * time.Millisecond,
		ReplayBatchSize: getEnvInt("REPLAY_BATCH_SIZE", MaxReplayBatchSize),
		TrustedOrigins:  splitList(getEnv("TRUSTED_ORIGINS", "")),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.ReplayBatchSize <= 0 || cfg.ReplayBatchSize > MaxReplayBatchSize {
		cfg.ReplayBatchSize = MaxReplayBatchSize
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
