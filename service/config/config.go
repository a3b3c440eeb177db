package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
)

// Config holds all application configuration loaded from environment variables.
// Everything is validated at startup so misconfiguration fails fast.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Empty disables the finalized transaction cache.
	DatabaseURL string

	// NATS configuration. Empty disables status event publishing.
	NATSURL string

	// RPC endpoint overrides per cluster
	Clusters   cluster.Env
	RPCTimeout time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	WatchTimeout      time.Duration

	// Status polling configuration
	AutoRefreshInterval     time.Duration
	ZeroConfirmationBailout int
}

// MinAutoRefreshInterval is the fastest refresh a deployment may configure.
const MinAutoRefreshInterval = 100 * time.Millisecond

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads configuration from environment variables and validates it.
// All problems are reported together.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Cluster overrides
	cfg.Clusters = cluster.EnvFromOS()

	rpcTimeout, err := parseDuration("RPC_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = rpcTimeout
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "roxscan-tx-watch")

	watchTimeout, err := parseDuration("WATCH_TIMEOUT", "10m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WatchTimeout = watchTimeout
	}

	// Polling configuration
	interval, err := parseDuration("AUTO_REFRESH_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AutoRefreshInterval = interval
	}

	bailout, err := parseInt("ZERO_CONFIRMATION_BAILOUT", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ZeroConfirmationBailout = bailout
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if !logLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.AutoRefreshInterval < MinAutoRefreshInterval {
		errs = append(errs, fmt.Errorf("AutoRefreshInterval must be at least %v", MinAutoRefreshInterval))
	}

	if c.ZeroConfirmationBailout < 1 {
		errs = append(errs, fmt.Errorf("ZeroConfirmationBailout must be at least 1"))
	}

	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCTimeout must be positive"))
	}

	if c.WatchTimeout < c.AutoRefreshInterval {
		errs = append(errs, fmt.Errorf("WatchTimeout (%v) cannot be shorter than AutoRefreshInterval (%v)",
			c.WatchTimeout, c.AutoRefreshInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Resolver returns a cluster resolver over the configured overrides.
func (c *Config) Resolver() *cluster.Resolver {
	return cluster.NewResolver(c.Clusters)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
