package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, url string) (*http.Response, *sseReader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, newSSEReader(resp.Body)
}

// nextStatus reads events until a status event matching ok arrives.
func nextStatus(t *testing.T, r *sseReader, ok func(txstatus.Snapshot) bool) txstatus.Snapshot {
	t.Helper()
	for {
		ev, err := r.next()
		require.NoError(t, err)
		if ev.Name != "status" {
			continue
		}
		var snap txstatus.Snapshot
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &snap))
		if ok(snap) {
			return snap
		}
	}
}

func TestStreamTransaction(t *testing.T) {
	sig := testSignature()
	node := newFakeNode()
	node.setStatus(confirmed(3))
	publisher := natspkg.NewMockPublisher()

	srv := newTestServer(t, node).WithPublisher(publisher)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, stream := openStream(t, ts.URL+"/api/v1/stream/tx/"+sig+"?cluster=devnet")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	ev, err := stream.next()
	require.NoError(t, err)
	require.Equal(t, "connected", ev.Name)
	var connected streamConnected
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &connected))
	assert.Equal(t, sig, connected.Signature)
	assert.Equal(t, "devnet", connected.Cluster)
	require.NotEmpty(t, connected.ViewID)

	snap := nextStatus(t, stream, func(s txstatus.Snapshot) bool { return s.Info != nil })
	assert.Equal(t, txstatus.Active, snap.Mode)
	assert.Equal(t, "3", snap.Info.Confirmations.String())

	// the view is reachable while the stream is open
	view, ok := srv.Views().Get(connected.ViewID)
	require.True(t, ok)
	assert.Equal(t, sig, view.Signature)

	rec := serve(srv.Handler(), http.MethodPost, "/api/v1/views/"+connected.ViewID+"/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// finalization ends auto refresh and is published once
	node.setStatus(finalized())
	snap = nextStatus(t, stream, func(s txstatus.Snapshot) bool { return s.Info.Finalized() })
	assert.Equal(t, txstatus.Inactive, snap.Mode)

	require.Eventually(t, func() bool {
		events := publisher.GetPublishedEventsForSignature(sig)
		return len(events) == 2 && events[1].Finalized
	}, 5*time.Second, 20*time.Millisecond)
	events := publisher.GetPublishedEventsForSignature(sig)
	assert.Equal(t, "devnet", events[0].Cluster)
	assert.Equal(t, "3", events[0].Confirmations)

	resp.Body.Close()
	assert.Eventually(t, func() bool { return srv.Views().Len() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestStreamTransaction_ClusterFailure(t *testing.T) {
	node := newFakeNode()
	node.nodeErr = errors.New("connection refused")
	node.setStatus(confirmed(3))

	srv := newTestServer(t, node)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, stream := openStream(t, ts.URL+"/api/v1/stream/tx/"+testSignature())

	ev, err := stream.next()
	require.NoError(t, err)
	require.Equal(t, "connected", ev.Name)
	assert.Contains(t, ev.Data, `"cluster_status":"failure"`)

	ev, err = stream.next()
	require.NoError(t, err)
	require.Equal(t, "status", ev.Name)

	// no fetch is issued against a failed cluster
	time.Sleep(300 * time.Millisecond)
	node.mu.Lock()
	hits := node.statusHits
	node.mu.Unlock()
	assert.Equal(t, 0, hits)
}

func TestStreamTransaction_BadRequest(t *testing.T) {
	srv := newTestServer(t, newFakeNode())

	rec := serve(srv.Handler(), http.MethodGet, "/api/v1/stream/tx/not-a-signature", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `Signature "not-a-signature" is not valid`, decodeError(t, rec))

	rec = serve(srv.Handler(), http.MethodGet, "/api/v1/stream/tx/"+testSignature()+"?cluster=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, srv.Views().Len())
}

func TestPublishKey(t *testing.T) {
	a := &natspkg.TxStatusEvent{FetchStatus: "fetched", Found: true, Confirmations: "3", Mode: "active", ZeroConfirmationRetries: 0}
	b := *a
	b.ZeroConfirmationRetries = 2
	b.UpdatedAt = time.Now()
	assert.Equal(t, publishKey(a), publishKey(&b))

	c := *a
	c.Confirmations = "4"
	assert.NotEqual(t, publishKey(a), publishKey(&c))
}

func TestStreamFeed(t *testing.T) {
	sig := testSignature()

	t.Run("relays events", func(t *testing.T) {
		feed := func(ctx context.Context, signature string, fn func(*natspkg.TxStatusEvent)) error {
			fn(&natspkg.TxStatusEvent{Signature: signature, Cluster: "mainnet-beta", Found: true, Confirmations: "max", Finalized: true})
			<-ctx.Done()
			return nil
		}
		srv := newTestServer(t, newFakeNode()).WithFeed(feed)
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		_, stream := openStream(t, ts.URL+"/api/v1/feed/tx/"+sig)

		ev, err := stream.next()
		require.NoError(t, err)
		assert.Equal(t, "connected", ev.Name)

		ev, err = stream.next()
		require.NoError(t, err)
		require.Equal(t, "status", ev.Name)
		event, err := natspkg.DecodeEvent([]byte(ev.Data))
		require.NoError(t, err)
		assert.Equal(t, sig, event.Signature)
		assert.True(t, event.Finalized)
	})

	t.Run("subscription failure", func(t *testing.T) {
		feed := func(ctx context.Context, signature string, fn func(*natspkg.TxStatusEvent)) error {
			return errors.New("nats unavailable")
		}
		srv := newTestServer(t, newFakeNode()).WithFeed(feed)
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		_, stream := openStream(t, ts.URL+"/api/v1/feed/tx/"+sig)

		var names []string
		for {
			ev, err := stream.next()
			if err != nil {
				break
			}
			names = append(names, ev.Name)
		}
		assert.Equal(t, "error", names[len(names)-1])
	})

	t.Run("invalid signature", func(t *testing.T) {
		srv := newTestServer(t, newFakeNode()).WithFeed(func(context.Context, string, func(*natspkg.TxStatusEvent)) error { return nil })
		rec := serve(srv.Handler(), http.MethodGet, "/api/v1/feed/tx/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, strings.HasPrefix(decodeError(t, rec), `Signature "abc"`))
	})
}
