package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// StatusQuery is the query type that returns the watch's latest snapshot.
const StatusQuery = "status"

// Watch outcomes.
const (
	OutcomeFinalized   = "finalized"
	OutcomeNotFound    = "not_found"
	OutcomeErrored     = "errored"
	OutcomeBailedOut   = "bailed_out"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeTimedOut    = "timed_out"
)

// Defaults applied to zero fields of WatchInput.
const (
	DefaultWatchInterval = 2 * time.Second
	DefaultWatchTimeout  = 10 * time.Minute
)

// WatchInput describes a transaction to watch until it settles.
type WatchInput struct {
	Signature string          `json:"signature"`
	Cluster   cluster.Cluster `json:"cluster"`
	CustomURL string          `json:"custom_url,omitempty"`
	Interval  time.Duration   `json:"interval"`
	Bailout   int             `json:"bailout"`
	Timeout   time.Duration   `json:"timeout"`
}

func (in WatchInput) withDefaults() WatchInput {
	if in.Interval <= 0 {
		in.Interval = DefaultWatchInterval
	}
	if in.Bailout < 1 {
		in.Bailout = txstatus.ZeroConfirmationBailout
	}
	if in.Timeout <= 0 {
		in.Timeout = DefaultWatchTimeout
	}
	return in
}

// WatchResult is returned when the watch ends.
type WatchResult struct {
	Signature string            `json:"signature"`
	Cluster   cluster.Cluster   `json:"cluster"`
	Outcome   string            `json:"outcome"`
	Polls     int               `json:"polls"`
	Snapshot  txstatus.Snapshot `json:"snapshot"`
}

// WatchTransactionWorkflow polls the status of a signature at a fixed
// interval, publishing every snapshot, until the transaction is finalized,
// errors, is not found, bails out on zero confirmations, or the timeout
// elapses.
//
// The state machine is the same txstatus.Tracker the explorer uses; it is
// pure, so replay is deterministic.
func WatchTransactionWorkflow(ctx workflow.Context, input WatchInput) (*WatchResult, error) {
	logger := workflow.GetLogger(ctx)
	input = input.withDefaults()
	logger.Info("WatchTransactionWorkflow started",
		"signature", input.Signature,
		"cluster", input.Cluster.Slug(),
		"interval", input.Interval,
	)

	startedAt := workflow.Now(ctx)
	deadline := startedAt.Add(input.Timeout)

	tracker := txstatus.NewTracker(input.Bailout)
	result := &WatchResult{Signature: input.Signature, Cluster: input.Cluster}
	snapshot := func() txstatus.Snapshot {
		snap := tracker.Snapshot(input.Signature)
		snap.UpdatedAt = workflow.Now(ctx)
		return snap
	}
	result.Snapshot = snapshot()

	err := workflow.SetQueryHandler(ctx, StatusQuery, func() (txstatus.Snapshot, error) {
		return result.Snapshot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register status query: %w", err)
	}

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	publishCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	fetchInput := FetchStatusInput{
		Signature: input.Signature,
		Cluster:   input.Cluster,
		CustomURL: input.CustomURL,
	}

	for {
		seq := tracker.Begin()
		var info *txstatus.StatusInfo
		err := workflow.ExecuteActivity(fetchCtx, a.FetchStatus, fetchInput).Get(fetchCtx, &info)
		result.Polls++
		if err != nil {
			logger.Warn("status fetch failed", "signature", input.Signature, "error", err)
			tracker.Fail(seq, err)
		} else {
			tracker.Complete(seq, info)
		}
		result.Snapshot = snapshot()

		outcome, done := watchOutcome(tracker)
		if !done && !workflow.Now(ctx).Add(input.Interval).Before(deadline) {
			outcome, done = OutcomeTimedOut, true
		}

		publish := PublishStatusInput{Cluster: input.Cluster, Snapshot: result.Snapshot}
		if done {
			publish.Outcome = outcome
			publish.StartedAt = startedAt
		}
		if err := workflow.ExecuteActivity(publishCtx, a.PublishStatus, publish).Get(publishCtx, nil); err != nil {
			logger.Warn("failed to publish status", "signature", input.Signature, "error", err)
		}

		if done {
			result.Outcome = outcome
			break
		}

		if err := workflow.Sleep(ctx, input.Interval); err != nil {
			return result, fmt.Errorf("watch interrupted: %w", err)
		}
	}

	logger.Info("WatchTransactionWorkflow completed",
		"signature", input.Signature,
		"outcome", result.Outcome,
		"polls", result.Polls,
	)
	return result, nil
}

// watchOutcome reports whether the tracker has reached a state the watch
// should stop in.
func watchOutcome(t *txstatus.Tracker) (string, bool) {
	status := t.Status()
	switch {
	case status == nil:
		return "", false
	case status.Info == nil && status.FetchStatus == txstatus.FetchFailed:
		return OutcomeFetchFailed, true
	case status.Info == nil:
		return OutcomeNotFound, true
	case status.Info.Finalized():
		return OutcomeFinalized, true
	case status.Info.Err != nil:
		return OutcomeErrored, true
	case t.Mode() == txstatus.BailedOut:
		return OutcomeBailedOut, true
	}
	return "", false
}
