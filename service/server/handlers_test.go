package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/temporal"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHandleClusterInfo(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		srv := newTestServer(t, newFakeNode())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cluster", nil)
		req.Host = "localhost:8080"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp clusterResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "mainnet-beta", resp.Cluster)
		assert.Equal(t, "connected", resp.Status)
		assert.Equal(t, cluster.MainnetBetaURL, resp.RPCURL)
		require.NotNil(t, resp.Epoch)
		assert.Equal(t, uint64(512), resp.Epoch.Epoch)
		assert.Empty(t, resp.Error)
	})

	t.Run("explorer host gets explorer endpoint", func(t *testing.T) {
		srv := newTestServer(t, newFakeNode())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cluster?cluster=devnet", nil)
		req.Host = "explorer.example.com"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp clusterResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "devnet", resp.Cluster)
		assert.Equal(t, "https://roxchain-dev.roxcustody.io", resp.RPCURL)
	})

	t.Run("unreachable node", func(t *testing.T) {
		node := newFakeNode()
		node.nodeErr = errors.New("connection refused")
		srv := newTestServer(t, node)

		rec := serve(srv.Handler(), http.MethodGet, "/api/v1/cluster", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp clusterResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "failure", resp.Status)
		assert.Contains(t, resp.Error, "connection refused")
		assert.Nil(t, resp.Epoch)
	})

	t.Run("unknown cluster", func(t *testing.T) {
		srv := newTestServer(t, newFakeNode())
		rec := serve(srv.Handler(), http.MethodGet, "/api/v1/cluster?cluster=testnet", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleTransactionStatus(t *testing.T) {
	sig := testSignature()

	tests := []struct {
		name           string
		path           string
		setup          func(*fakeNode)
		expectedStatus int
		check          func(t *testing.T, resp statusResponse)
	}{
		{
			name:           "confirmed",
			path:           "/api/v1/tx/" + sig + "/status",
			setup:          func(n *fakeNode) { n.status = confirmed(7) },
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, resp statusResponse) {
				assert.True(t, resp.Found)
				assert.False(t, resp.Finalized)
				require.NotNil(t, resp.Info)
				assert.Equal(t, "7", resp.Info.Confirmations.String())
				assert.Equal(t, "mainnet-beta", resp.Cluster)
			},
		},
		{
			name:           "finalized on devnet",
			path:           "/api/v1/tx/" + sig + "/status?cluster=devnet",
			setup:          func(n *fakeNode) { n.status = finalized() },
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, resp statusResponse) {
				assert.True(t, resp.Found)
				assert.True(t, resp.Finalized)
				assert.Equal(t, "devnet", resp.Cluster)
			},
		},
		{
			name:           "not found",
			path:           "/api/v1/tx/" + sig + "/status",
			setup:          func(n *fakeNode) {},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, resp statusResponse) {
				assert.False(t, resp.Found)
				assert.Nil(t, resp.Info)
			},
		},
		{
			name:           "node error",
			path:           "/api/v1/tx/" + sig + "/status",
			setup:          func(n *fakeNode) { n.statusErr = errors.New("timeout") },
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "invalid signature",
			path:           "/api/v1/tx/abc/status",
			setup:          func(n *fakeNode) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid cluster",
			path:           "/api/v1/tx/" + sig + "/status?cluster=nope",
			setup:          func(n *fakeNode) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode()
			tt.setup(node)
			srv := newTestServer(t, node)

			rec := serve(srv.Handler(), http.MethodGet, tt.path, "")
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			if tt.check != nil {
				var resp statusResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, sig, resp.Signature)
				tt.check(t, resp)
			}
		})
	}
}

func TestHandleTransactionStatus_InvalidSignatureMessage(t *testing.T) {
	srv := newTestServer(t, newFakeNode())
	rec := serve(srv.Handler(), http.MethodGet, "/api/v1/tx/abc/status", "")
	assert.Equal(t, `Signature "abc" is not valid`, decodeError(t, rec))
}

func TestViewHandlers(t *testing.T) {
	newView := func(t *testing.T, views *ViewRegistry) *View {
		p := txstatus.New(testSignature(), newFakeNode(), txstatus.Options{ClusterStatus: cluster.Failure})
		p.Start(t.Context())
		return views.Add(testSignature(), cluster.Selection{}, p)
	}

	t.Run("get", func(t *testing.T) {
		views := NewViewRegistry(quietLogger())
		t.Cleanup(views.CloseAll)
		view := newView(t, views)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/views/"+view.ID, nil)
		req.SetPathValue("id", view.ID)
		rec := httptest.NewRecorder()
		handleGetView(views, quietLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var snap txstatus.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, testSignature(), snap.Signature)
	})

	t.Run("visibility", func(t *testing.T) {
		views := NewViewRegistry(quietLogger())
		t.Cleanup(views.CloseAll)
		view := newView(t, views)
		h := handleSetVisibility(views, quietLogger())

		cases := []struct {
			name   string
			id     string
			body   string
			status int
		}{
			{"hidden", view.ID, `{"visible": false}`, http.StatusAccepted},
			{"visible", view.ID, `{"visible": true}`, http.StatusAccepted},
			{"missing field", view.ID, `{}`, http.StatusBadRequest},
			{"malformed", view.ID, `{"visible":`, http.StatusBadRequest},
			{"too large", view.ID, `{"visible": true, "pad": "` + strings.Repeat("x", 4096) + `"}`, http.StatusBadRequest},
			{"unknown view", "nope", `{"visible": true}`, http.StatusNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/views/"+tc.id+"/visibility", strings.NewReader(tc.body))
				req.SetPathValue("id", tc.id)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			})
		}
	})

	t.Run("refresh", func(t *testing.T) {
		views := NewViewRegistry(quietLogger())
		t.Cleanup(views.CloseAll)
		view := newView(t, views)
		h := handleRefreshView(views, quietLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/views/"+view.ID+"/refresh", nil)
		req.SetPathValue("id", view.ID)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/api/v1/views/nope/refresh", nil)
		req.SetPathValue("id", "nope")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("closed poller", func(t *testing.T) {
		views := NewViewRegistry(quietLogger())
		t.Cleanup(views.CloseAll)
		view := newView(t, views)
		view.Poller.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/views/"+view.ID+"/refresh", nil)
		req.SetPathValue("id", view.ID)
		rec := httptest.NewRecorder()
		handleRefreshView(views, quietLogger()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusGone, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/api/v1/views/"+view.ID+"/visibility", strings.NewReader(`{"visible": true}`))
		req.SetPathValue("id", view.ID)
		rec = httptest.NewRecorder()
		handleSetVisibility(views, quietLogger()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusGone, rec.Code)
	})
}

func TestWatchHandlers(t *testing.T) {
	sig := testSignature()
	path := "/api/v1/tx/" + sig + "/watch"

	t.Run("lifecycle", func(t *testing.T) {
		watcher := temporal.NewMockWatcher()
		srv := newTestServer(t, newFakeNode()).WithWatcher(watcher)
		h := srv.Handler()

		rec := serve(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = serve(h, http.MethodPost, path+"?cluster=devnet", "")
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var run temporal.WatchRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, temporal.WatchID(cluster.Devnet, sig), run.WorkflowID)

		input, ok := watcher.Input(cluster.Devnet, sig)
		require.True(t, ok)
		cfg := testConfig()
		assert.Equal(t, cfg.AutoRefreshInterval, input.Interval)
		assert.Equal(t, cfg.ZeroConfirmationBailout, input.Bailout)
		assert.Equal(t, cfg.WatchTimeout, input.Timeout)

		rec = serve(h, http.MethodGet, path+"?cluster=devnet", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var status temporal.WatchStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, temporal.WatchRunning, status.Status)

		rec = serve(h, http.MethodDelete, path+"?cluster=devnet", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = serve(h, http.MethodGet, path+"?cluster=devnet", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, temporal.WatchCancelled, status.Status)

		// watches are per cluster
		rec = serve(h, http.MethodDelete, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("custom cluster carries url", func(t *testing.T) {
		watcher := temporal.NewMockWatcher()
		srv := newTestServer(t, newFakeNode()).WithWatcher(watcher)

		rec := serve(srv.Handler(), http.MethodPost, path+"?cluster=custom&customUrl=http%3A%2F%2F127.0.0.1%3A8899", "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		input, ok := watcher.Input(cluster.Custom, sig)
		require.True(t, ok)
		assert.Equal(t, "http://127.0.0.1:8899", input.CustomURL)
	})

	t.Run("errors", func(t *testing.T) {
		watcher := temporal.NewMockWatcher()
		srv := newTestServer(t, newFakeNode()).WithWatcher(watcher)
		h := srv.Handler()

		rec := serve(h, http.MethodPost, "/api/v1/tx/abc/watch", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = serve(h, http.MethodPost, path+"?cluster=nope", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		watcher.SetStartError(errors.New("temporal unavailable"))
		rec = serve(h, http.MethodPost, path, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "failed to start watch", decodeError(t, rec))

		watcher.SetStartError(nil)
		rec = serve(h, http.MethodPost, path, "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		watcher.SetCancelError(errors.New("temporal unavailable"))
		rec = serve(h, http.MethodDelete, path, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
