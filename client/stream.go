package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
)

// ErrStop ends a stream without error when returned from a callback.
var ErrStop = errors.New("stop stream")

// StreamEvent is one status update from a live view.
type StreamEvent struct {
	ViewID        string
	ClusterStatus string
	Snapshot      txstatus.Snapshot
}

type streamConnected struct {
	ViewID        string `json:"view_id"`
	Signature     string `json:"signature"`
	Cluster       string `json:"cluster"`
	ClusterStatus string `json:"cluster_status"`
}

// StreamStatus opens a live view of signature and calls fn for every status
// snapshot until ctx is done, the server closes the stream, or fn returns an
// error. The view is closed by the server when the stream ends.
func (c *Client) StreamStatus(ctx context.Context, signature string, sel cluster.Selection, fn func(StreamEvent) error) error {
	u := c.url("/api/v1/stream/tx/"+url.PathEscape(signature), sel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	var connected streamConnected
	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "connected":
			if err := json.Unmarshal([]byte(data), &connected); err != nil {
				return fmt.Errorf("failed to decode connected event: %w", err)
			}
			c.logger.Debug("status stream connected", "view_id", connected.ViewID, "signature", signature)
		case "status":
			var snap txstatus.Snapshot
			if err := json.Unmarshal([]byte(data), &snap); err != nil {
				return fmt.Errorf("failed to decode status event: %w", err)
			}
			return fn(StreamEvent{ViewID: connected.ViewID, ClusterStatus: connected.ClusterStatus, Snapshot: snap})
		}
		return nil
	})
	if errors.Is(err, ErrStop) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Settled reports whether a snapshot will not change without a manual
// refresh: the transaction is finalized, errored or not found, or polling
// bailed out.
func Settled(snap txstatus.Snapshot) bool {
	if snap.FetchStatus == txstatus.Fetching {
		return false
	}
	if snap.NotFound() || snap.Mode == txstatus.BailedOut {
		return true
	}
	return snap.Info != nil && (snap.Info.Finalized() || snap.Info.Err != nil)
}

// AwaitSettled streams signature until Settled reports true and returns the
// settling snapshot.
func (c *Client) AwaitSettled(ctx context.Context, signature string, sel cluster.Selection) (*txstatus.Snapshot, error) {
	var last *txstatus.Snapshot
	err := c.StreamStatus(ctx, signature, sel, func(e StreamEvent) error {
		snap := e.Snapshot
		last = &snap
		if Settled(snap) {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if last == nil || !Settled(*last) {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		return last, errors.New("stream ended before the transaction settled")
	}
	return last, nil
}

// readEvents parses a text/event-stream body and calls fn for each event.
// Comment lines are skipped.
func readEvents(body io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
