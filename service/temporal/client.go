package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Watcher that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartWatch starts a WatchTransactionWorkflow for the input's signature. If
// a watch for the same signature and cluster is already running, its run is
// returned instead.
func (c *Client) StartWatch(ctx context.Context, input WatchInput) (*WatchRun, error) {
	input = input.withDefaults()
	id := WatchID(input.Cluster, input.Signature)

	c.logger.Debug("starting watch",
		"signature", input.Signature,
		"cluster", input.Cluster.Slug(),
		"workflow_id", id,
		"interval", input.Interval,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: input.Timeout + time.Minute,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, WatchTransactionWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start watch", "workflow_id", id, "error", err)
		return nil, fmt.Errorf("failed to start watch: %w", err)
	}

	c.logger.Info("started watch", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return &WatchRun{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// DescribeWatch returns the state of the latest watch for signature.
// It returns ErrWatchNotFound when no watch was ever started.
func (c *Client) DescribeWatch(ctx context.Context, cl cluster.Cluster, signature string) (*WatchStatus, error) {
	id := WatchID(cl, signature)

	desc, err := c.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrWatchNotFound
		}
		return nil, fmt.Errorf("failed to describe watch: %w", err)
	}

	info := desc.GetWorkflowExecutionInfo()
	status := &WatchStatus{
		WorkflowID: id,
		RunID:      info.GetExecution().GetRunId(),
		Status:     watchExecutionStatus(info.GetStatus()),
	}

	value, err := c.client.QueryWorkflow(ctx, id, status.RunID, StatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch: %w", err)
	}
	var snap txstatus.Snapshot
	if err := value.Get(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode watch snapshot: %w", err)
	}
	status.Snapshot = &snap

	if status.Status == WatchCompleted {
		var result WatchResult
		if err := c.client.GetWorkflow(ctx, id, status.RunID).Get(ctx, &result); err == nil {
			status.Outcome = result.Outcome
		}
	}

	return status, nil
}

// CancelWatch stops a running watch.
func (c *Client) CancelWatch(ctx context.Context, cl cluster.Cluster, signature string) error {
	id := WatchID(cl, signature)
	if err := c.client.CancelWorkflow(ctx, id, ""); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return ErrWatchNotFound
		}
		return fmt.Errorf("failed to cancel watch: %w", err)
	}
	c.logger.Info("cancelled watch", "workflow_id", id)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func watchExecutionStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return WatchRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return WatchCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return WatchCancelled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return WatchTimedOut
	default:
		return WatchFailed
	}
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
