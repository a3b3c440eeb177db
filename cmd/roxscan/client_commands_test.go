package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/roxscan/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExplorer answers the explorer API with canned responses.
func fakeExplorer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/cluster", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.ClusterInfo{
			Cluster: r.URL.Query().Get("cluster"),
			Name:    "Devnet",
			RPCURL:  "https://roxchain-dev.roxcustody.io",
			Status:  "connected",
		})
	})
	mux.HandleFunc("GET /api/v1/tx/{signature}/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"signature": r.PathValue("signature"),
			"cluster":   "mainnet-beta",
			"found":     true,
			"finalized": true,
			"info":      map[string]any{"slot": 1234, "confirmations": "max", "confirmation_status": "finalized"},
		})
	})
	mux.HandleFunc("GET /api/v1/stream/tx/{signature}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sig := r.PathValue("signature")
		fmt.Fprintf(w, "event: connected\ndata: {\"view_id\":\"v1\",\"signature\":%q}\n\n", sig)
		fmt.Fprintf(w, "event: status\ndata: {\"signature\":%q,\"fetch_status\":\"fetched\",\"info\":{\"slot\":1,\"confirmations\":3},\"mode\":\"active\"}\n\n", sig)
		fmt.Fprintf(w, "event: status\ndata: {\"signature\":%q,\"fetch_status\":\"fetched\",\"info\":{\"slot\":1,\"confirmations\":\"max\"},\"mode\":\"inactive\"}\n\n", sig)
	})
	mux.HandleFunc("POST /api/v1/tx/{signature}/watch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(client.WatchRun{WorkflowID: "watch-tx-devnet-" + r.PathValue("signature"), RunID: "run-1"})
	})
	mux.HandleFunc("GET /api/v1/tx/{signature}/watch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "watch not found"})
	})
	mux.HandleFunc("DELETE /api/v1/tx/{signature}/watch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientClusterCommand(t *testing.T) {
	ts := fakeExplorer(t)

	out, err := run(t, "--server-url", ts.URL, "--cluster", "devnet", "client", "cluster")
	require.NoError(t, err)
	assert.Contains(t, out, "Devnet")
	assert.Contains(t, out, "connected")

	out, err = run(t, "--server-url", ts.URL, "--cluster", "devnet", "--jq", ".cluster", "client", "cluster")
	require.NoError(t, err)
	assert.Equal(t, "devnet\n", out)
}

func TestClientStatusCommand(t *testing.T) {
	ts := fakeExplorer(t)
	sig := testSignature()

	out, err := run(t, "--server-url", ts.URL, "client", "status", sig)
	require.NoError(t, err)
	assert.Contains(t, out, sig)
	assert.Contains(t, out, "Success")
	assert.Contains(t, out, "max")

	out, err = run(t, "--server-url", ts.URL, "--jq", ".finalized", "client", "status", sig)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run(t, "--server-url", ts.URL, "client", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one argument")
}

func TestClientStreamCommand(t *testing.T) {
	ts := fakeExplorer(t)
	sig := testSignature()

	out, err := run(t, "--server-url", ts.URL, "--jq", ".mode", "client", "stream", sig)
	require.NoError(t, err)
	// stops at the finalized snapshot
	assert.Equal(t, "active\ninactive\n", out)
}

func TestClientAwaitCommand(t *testing.T) {
	ts := fakeExplorer(t)

	out, err := run(t, "--server-url", ts.URL, "--jq", ".info.confirmations", "client", "await", testSignature())
	require.NoError(t, err)
	assert.Equal(t, "max\n", out)
}

func TestClientWatchCommands(t *testing.T) {
	ts := fakeExplorer(t)
	sig := testSignature()

	out, err := run(t, "--server-url", ts.URL, "--cluster", "devnet", "client", "watch", "start", sig)
	require.NoError(t, err)
	assert.Contains(t, out, "watch-tx-devnet-"+sig)

	_, err = run(t, "--server-url", ts.URL, "client", "watch", "describe", sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrNotFound)

	out, err = run(t, "--server-url", ts.URL, "client", "watch", "cancel", sig)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "Watch cancelled"))
}
