package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// EpochInfo describes the cluster's current epoch.
type EpochInfo struct {
	Epoch        uint64 `json:"Epoch"`
	SlotIndex    uint64 `json:"SlotIndex"`
	SlotsInEpoch uint64 `json:"SlotsInEpoch"`
	AbsoluteSlot uint64 `json:"AbsoluteSlot"`
	BlockHeight  uint64 `json:"BlockHeight"`
}

// ClusterInfo is the result of probing a cluster through the explorer.
type ClusterInfo struct {
	Cluster             string     `json:"cluster"`
	Name                string     `json:"name"`
	RPCURL              string     `json:"rpc_url"`
	Status              string     `json:"status"`
	FirstAvailableBlock uint64     `json:"first_available_block"`
	Epoch               *EpochInfo `json:"epoch,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// TransactionStatus is a one-off status lookup.
type TransactionStatus struct {
	Signature string               `json:"signature"`
	Cluster   string               `json:"cluster"`
	Found     bool                 `json:"found"`
	Finalized bool                 `json:"finalized"`
	Info      *txstatus.StatusInfo `json:"info,omitempty"`
}

// WatchRun identifies a durable watch.
type WatchRun struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// WatchStatus is the state of a durable watch.
type WatchStatus struct {
	WorkflowID string             `json:"workflow_id"`
	RunID      string             `json:"run_id"`
	Status     string             `json:"status"`
	Outcome    string             `json:"outcome,omitempty"`
	Snapshot   *txstatus.Snapshot `json:"snapshot,omitempty"`
}

// Client is the HTTP client for the explorer API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// NewClient creates a new explorer client. httpClient's timeout does not
// apply to status streams.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		streamClient: &http.Client{Transport: httpClient.Transport},
		logger:       logger,
	}
}

func (c *Client) url(path string, sel cluster.Selection) string {
	return c.baseURL + sel.Link(path)
}

// do sends a request and decodes a JSON response into out when the status
// matches want. out may be nil.
func (c *Client) do(ctx context.Context, method, u string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Cluster probes the selected cluster.
func (c *Client) Cluster(ctx context.Context, sel cluster.Selection) (*ClusterInfo, error) {
	var info ClusterInfo
	if err := c.do(ctx, http.MethodGet, c.url("/api/v1/cluster", sel), nil, http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Status looks up a signature's status once.
func (c *Client) Status(ctx context.Context, signature string, sel cluster.Selection) (*TransactionStatus, error) {
	var status TransactionStatus
	path := "/api/v1/tx/" + url.PathEscape(signature) + "/status"
	if err := c.do(ctx, http.MethodGet, c.url(path, sel), nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	c.logger.Debug("status fetched", "signature", signature, "found", status.Found)
	return &status, nil
}

// View returns the latest snapshot of a live view.
func (c *Client) View(ctx context.Context, viewID string) (*txstatus.Snapshot, error) {
	var snap txstatus.Snapshot
	u := c.baseURL + "/api/v1/views/" + url.PathEscape(viewID)
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetVisibility reports whether the view is being displayed.
func (c *Client) SetVisibility(ctx context.Context, viewID string, visible bool) error {
	u := c.baseURL + "/api/v1/views/" + url.PathEscape(viewID) + "/visibility"
	return c.do(ctx, http.MethodPost, u, map[string]bool{"visible": visible}, http.StatusAccepted, nil)
}

// Refresh asks the view to refetch now.
func (c *Client) Refresh(ctx context.Context, viewID string) error {
	u := c.baseURL + "/api/v1/views/" + url.PathEscape(viewID) + "/refresh"
	return c.do(ctx, http.MethodPost, u, nil, http.StatusAccepted, nil)
}

func watchPath(signature string) string {
	return "/api/v1/tx/" + url.PathEscape(signature) + "/watch"
}

// StartWatch starts a durable watch, or returns the one already running.
func (c *Client) StartWatch(ctx context.Context, signature string, sel cluster.Selection) (*WatchRun, error) {
	var run WatchRun
	if err := c.do(ctx, http.MethodPost, c.url(watchPath(signature), sel), nil, http.StatusAccepted, &run); err != nil {
		return nil, err
	}
	c.logger.Debug("watch started", "signature", signature, "workflow_id", run.WorkflowID)
	return &run, nil
}

// DescribeWatch returns the state of a durable watch.
func (c *Client) DescribeWatch(ctx context.Context, signature string, sel cluster.Selection) (*WatchStatus, error) {
	var status WatchStatus
	if err := c.do(ctx, http.MethodGet, c.url(watchPath(signature), sel), nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelWatch stops a durable watch.
func (c *Client) CancelWatch(ctx context.Context, signature string, sel cluster.Selection) error {
	return c.do(ctx, http.MethodDelete, c.url(watchPath(signature), sel), nil, http.StatusNoContent, nil)
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error)
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
