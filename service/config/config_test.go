package config

import (
	"testing"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL", "RPC_TIMEOUT",
	"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "WATCH_TIMEOUT",
	"AUTO_REFRESH_INTERVAL", "ZERO_CONFIRMATION_BAILOUT",
	"PUBLIC_MAINNET_RPC_URL", "PUBLIC_DEVNET_RPC_URL", "MAINNET_RPC_URL", "DEVNET_RPC_URL",
}

// clearEnv blanks every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 15*time.Second, cfg.RPCTimeout)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "roxscan-tx-watch", cfg.TemporalTaskQueue)
	assert.Equal(t, 10*time.Minute, cfg.WatchTimeout)
	assert.Equal(t, 2*time.Second, cfg.AutoRefreshInterval)
	assert.Equal(t, 5, cfg.ZeroConfirmationBailout)
	assert.Equal(t, cluster.Env{}, cfg.Clusters)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://localhost/roxscan")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("AUTO_REFRESH_INTERVAL", "500ms")
	t.Setenv("ZERO_CONFIRMATION_BAILOUT", "3")
	t.Setenv("MAINNET_RPC_URL", "https://rpc.internal/mainnet")
	t.Setenv("PUBLIC_DEVNET_RPC_URL", "https://rpc.example/devnet")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/roxscan", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 500*time.Millisecond, cfg.AutoRefreshInterval)
	assert.Equal(t, 3, cfg.ZeroConfirmationBailout)
	assert.Equal(t, "https://rpc.internal/mainnet", cfg.Clusters.MainnetURL)
	assert.Equal(t, "https://rpc.example/devnet", cfg.Clusters.PublicDevnetURL)

	r := cfg.Resolver()
	assert.Equal(t, "https://rpc.internal/mainnet", r.ServerURL(cluster.MainnetBeta, ""))
	assert.Equal(t, "https://roxchain-dev.roxcustody.io", r.ServerURL(cluster.Devnet, ""))
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad duration", "AUTO_REFRESH_INTERVAL", "soon", "invalid duration"},
		{"bad integer", "ZERO_CONFIRMATION_BAILOUT", "five", "invalid integer"},
		{"interval too fast", "AUTO_REFRESH_INTERVAL", "10ms", "AutoRefreshInterval must be at least"},
		{"bailout too small", "ZERO_CONFIRMATION_BAILOUT", "0", "ZeroConfirmationBailout must be at least 1"},
		{"bad log level", "LOG_LEVEL", "verbose", "LogLevel must be one of"},
		{"bad rpc timeout", "RPC_TIMEOUT", "-1s", "RPCTimeout must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_AggregatesErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTO_REFRESH_INTERVAL", "soon")
	t.Setenv("ZERO_CONFIRMATION_BAILOUT", "five")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTO_REFRESH_INTERVAL")
	assert.Contains(t, err.Error(), "ZERO_CONFIRMATION_BAILOUT")
}

func TestValidate(t *testing.T) {
	valid := Config{
		ServerAddr:              ":8080",
		LogLevel:                "info",
		RPCTimeout:              time.Second,
		TemporalHost:            "localhost:7233",
		TemporalNamespace:       "default",
		TemporalTaskQueue:       "q",
		WatchTimeout:            time.Minute,
		AutoRefreshInterval:     2 * time.Second,
		ZeroConfirmationBailout: 5,
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.TemporalHost = ""
	bad.WatchTimeout = time.Second
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TemporalHost is required")
	assert.Contains(t, err.Error(), "WatchTimeout")
}

func TestMustLoad_Panics(t *testing.T) {
	clearEnv(t)
	t.Setenv("ZERO_CONFIRMATION_BAILOUT", "nope")
	assert.Panics(t, func() { MustLoad() })
}
