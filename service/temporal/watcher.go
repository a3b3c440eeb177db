package temporal

import (
	"context"
	"errors"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
)

// ErrWatchNotFound is returned when no watch exists for a signature.
var ErrWatchNotFound = errors.New("watch not found")

// Watch execution states.
const (
	WatchRunning   = "running"
	WatchCompleted = "completed"
	WatchCancelled = "cancelled"
	WatchTimedOut  = "timed_out"
	WatchFailed    = "failed"
)

// Watcher manages durable transaction watches.
// Each (cluster, signature) pair has at most one running watch.
type Watcher interface {
	// StartWatch starts watching a signature, or returns the running watch.
	StartWatch(ctx context.Context, input WatchInput) (*WatchRun, error)

	// DescribeWatch returns the latest state of the watch for a signature.
	DescribeWatch(ctx context.Context, c cluster.Cluster, signature string) (*WatchStatus, error)

	// CancelWatch stops a running watch.
	CancelWatch(ctx context.Context, c cluster.Cluster, signature string) error
}

// WatchRun identifies a started watch.
type WatchRun struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// WatchStatus is the state of a watch.
type WatchStatus struct {
	WorkflowID string             `json:"workflow_id"`
	RunID      string             `json:"run_id"`
	Status     string             `json:"status"`
	Outcome    string             `json:"outcome,omitempty"`
	Snapshot   *txstatus.Snapshot `json:"snapshot,omitempty"`
}

// WatchID returns the workflow ID of the watch for signature on c.
func WatchID(c cluster.Cluster, signature string) string {
	return "watch-tx-" + c.Slug() + "-" + signature
}

var (
	_ Watcher = (*Client)(nil)
	_ Watcher = (*MockWatcher)(nil)
)
