package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRPCOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MAINNET_RPC_URL", "DEVNET_RPC_URL", "PUBLIC_MAINNET_RPC_URL", "PUBLIC_DEVNET_RPC_URL", "ROXSCAN_CLUSTER", "ROXSCAN_CUSTOM_URL"} {
		t.Setenv(key, "")
	}
}

func TestClusterURLCommand(t *testing.T) {
	clearRPCOverrides(t)
	resolver := cluster.NewResolver(cluster.Env{})

	t.Run("server endpoint", func(t *testing.T) {
		out, err := run(t, "--cluster", "devnet", "cluster", "url")
		require.NoError(t, err)
		assert.Equal(t, resolver.ServerURL(cluster.Devnet, ""), strings.TrimSpace(out))
	})

	t.Run("public endpoint on localhost", func(t *testing.T) {
		out, err := run(t, "cluster", "url", "--public")
		require.NoError(t, err)
		assert.Equal(t, cluster.MainnetBetaURL, strings.TrimSpace(out))
	})

	t.Run("public endpoint on a deployed host", func(t *testing.T) {
		out, err := run(t, "--cluster", "devnet", "cluster", "url", "--public", "--hostname", "explorer.example.com")
		require.NoError(t, err)
		assert.Equal(t, "https://roxchain-dev.roxcustody.io", strings.TrimSpace(out))
	})

	t.Run("custom", func(t *testing.T) {
		out, err := run(t, "--cluster", "custom", "--custom-url", "http://10.0.0.1:8899", "cluster", "url")
		require.NoError(t, err)
		assert.Equal(t, "http://10.0.0.1:8899", strings.TrimSpace(out))
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "--json", "--cluster", "devnet", "cluster", "url", "--public")
		require.NoError(t, err)
		var res resolvedURL
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "devnet", res.Cluster)
		assert.Equal(t, "client", res.Context)
	})

	t.Run("jq", func(t *testing.T) {
		out, err := run(t, "--jq", ".context", "cluster", "url")
		require.NoError(t, err)
		assert.Equal(t, "server\n", out)
	})
}

func TestClusterURLCommand_Override(t *testing.T) {
	clearRPCOverrides(t)
	t.Setenv("MAINNET_RPC_URL", "https://rpc.example.com")

	out, err := run(t, "cluster", "url")
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.com", strings.TrimSpace(out))
}

func TestClusterURLCommand_UnknownCluster(t *testing.T) {
	clearRPCOverrides(t)

	_, err := run(t, "--cluster", "testnet", "cluster", "url")
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrUnknownCluster)
}
