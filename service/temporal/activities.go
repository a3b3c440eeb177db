package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/metrics"
	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/txstatus"
)

// FetchStatusInput contains parameters for the FetchStatus activity.
type FetchStatusInput struct {
	Signature string          `json:"signature"`
	Cluster   cluster.Cluster `json:"cluster"`
	CustomURL string          `json:"custom_url,omitempty"`
}

// PublishStatusInput contains parameters for the PublishStatus activity.
// Outcome is set on the last publish of a watch.
type PublishStatusInput struct {
	Cluster   cluster.Cluster   `json:"cluster"`
	Snapshot  txstatus.Snapshot `json:"snapshot"`
	Outcome   string            `json:"outcome,omitempty"`
	StartedAt time.Time         `json:"started_at,omitempty"`
}

// StatusFetcher is the node operation the FetchStatus activity needs.
// This allows for easy mocking in tests.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error)
}

// FetcherFactory builds a StatusFetcher for a cluster selection.
type FetcherFactory func(sel cluster.Selection) StatusFetcher

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	fetchers  FetcherFactory
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and metrics may be nil.
func NewActivities(fetchers FetcherFactory, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		fetchers:  fetchers,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SolanaFetchers returns a FetcherFactory that dials the server-side RPC
// endpoint of each selection.
func SolanaFetchers(resolver *cluster.Resolver, rpcTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) FetcherFactory {
	return func(sel cluster.Selection) StatusFetcher {
		endpoint := resolver.ServerURL(sel.Cluster, sel.CustomURL)
		c := solana.NewClient(solana.NewRPCClient(endpoint), sel.Cluster.Slug(), m, logger)
		if rpcTimeout > 0 {
			return timeoutFetcher{c, rpcTimeout}
		}
		return c
	}
}

type timeoutFetcher struct {
	next    StatusFetcher
	timeout time.Duration
}

func (f timeoutFetcher) FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.next.FetchStatus(ctx, signature)
}

// FetchStatus reads the status of a signature from the selected cluster.
// A nil result means the node does not know the signature.
func (a *Activities) FetchStatus(ctx context.Context, input FetchStatusInput) (*txstatus.StatusInfo, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("FetchStatus", input.Cluster.Slug(), time.Since(start).Seconds())
		}
	}()

	if _, err := solana.ParseSignature(input.Signature); err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if a.fetchers == nil {
		return nil, fmt.Errorf("no status fetcher configured")
	}

	sel := cluster.Selection{Cluster: input.Cluster, CustomURL: input.CustomURL}
	info, err := a.fetchers(sel).FetchStatus(ctx, input.Signature)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch status",
			"signature", input.Signature,
			"cluster", input.Cluster.Slug(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}

	if info == nil {
		a.logger.DebugContext(ctx, "signature not found", "signature", input.Signature)
	} else {
		a.logger.DebugContext(ctx, "fetched status",
			"signature", input.Signature,
			"slot", info.Slot,
			"confirmations", info.Confirmations.String(),
		)
	}
	return info, nil
}

// PublishStatus publishes a watch snapshot to NATS. Without a publisher it
// only logs. When the input carries an outcome the watch duration is recorded.
func (a *Activities) PublishStatus(ctx context.Context, input PublishStatusInput) error {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishStatus", input.Cluster.Slug(), time.Since(start).Seconds())
		}
	}()

	if input.Outcome != "" && a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.Outcome, time.Since(input.StartedAt).Seconds())
	}

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping publish",
			"signature", input.Snapshot.Signature,
		)
		return nil
	}

	event := natspkg.FromSnapshot(input.Cluster.Slug(), input.Snapshot)
	if err := a.publisher.PublishStatus(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish status",
			"signature", input.Snapshot.Signature,
			"error", err,
		)
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}
