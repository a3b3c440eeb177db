package txstatus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/metrics"
)

// ErrPollerClosed is returned by operations on a closed poller.
var ErrPollerClosed = errors.New("poller closed")

// Fetcher retrieves the status of a signature. A nil info with a nil error
// means the signature is not known to the node.
type Fetcher interface {
	FetchStatus(ctx context.Context, signature string) (*StatusInfo, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, signature string) (*StatusInfo, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, signature string) (*StatusInfo, error) {
	return f(ctx, signature)
}

// Options configures a Poller. Zero values select the defaults.
type Options struct {
	Clock         clock.Clock
	Interval      time.Duration
	Bailout       int
	ClusterStatus cluster.Status
	// OnUpdate is called from the poller goroutine after every state change.
	OnUpdate func(Snapshot)
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type fetchResult struct {
	seq  uint64
	info *StatusInfo
	err  error
}

// Poller keeps one signature's status fresh. All state lives in a single
// event loop goroutine; the refetch ticker exists only while the mode is
// Active and is always stopped when the loop exits.
type Poller struct {
	signature string
	fetcher   Fetcher
	opts      Options
	logger    *slog.Logger

	refreshCh chan struct{}
	visibleCh chan bool
	resultCh  chan fetchResult

	mu      sync.RWMutex
	latest  Snapshot
	started bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller for signature. Call Start to begin polling.
func New(signature string, fetcher Fetcher, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = AutoRefreshInterval
	}
	if opts.Bailout < 1 {
		opts.Bailout = ZeroConfirmationBailout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		signature: signature,
		fetcher:   fetcher,
		opts:      opts,
		logger:    logger.With("signature", signature),
		refreshCh: make(chan struct{}, 1),
		visibleCh: make(chan bool, 1),
		resultCh:  make(chan fetchResult),
		latest:    NewTracker(opts.Bailout).Snapshot(signature),
		done:      make(chan struct{}),
	}
}

// Start launches the event loop. If the cluster is connected, one fetch is
// issued right away. Start may only be called once.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordPollerChange(1)
	}
	go p.loop(ctx)
}

// Refresh requests a manual fetch. It is allowed in every mode.
func (p *Poller) Refresh() error {
	select {
	case <-p.done:
		return ErrPollerClosed
	default:
	}
	select {
	case p.refreshCh <- struct{}{}:
	default:
		// a refresh is already queued
	}
	return nil
}

// SetVisible reports whether the view is currently displayed.
func (p *Poller) SetVisible(visible bool) error {
	select {
	case <-p.done:
		return ErrPollerClosed
	default:
	}
	for {
		select {
		case p.visibleCh <- visible:
			return nil
		case <-p.visibleCh:
			// drop the unread value, the newest one wins
		case <-p.done:
			return ErrPollerClosed
		}
	}
}

// Snapshot returns the most recently published state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Done is closed once the event loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Close stops the poller and waits for the loop to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.mu.Unlock()
		close(p.done)
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordPollerChange(-1)
		}
	}()

	tracker := NewTracker(p.opts.Bailout)
	var ticker *clock.Ticker
	var tick <-chan time.Time
	var inflight sync.WaitGroup
	defer inflight.Wait()

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
			p.logger.DebugContext(ctx, "auto refresh stopped")
		}
	}
	defer stopTicker()

	fetch := func(reason string) {
		seq := tracker.Begin()
		p.logger.DebugContext(ctx, "fetching transaction status", "seq", seq, "reason", reason)
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordPollerFetch(reason)
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			info, err := p.fetcher.FetchStatus(ctx, p.signature)
			select {
			case p.resultCh <- fetchResult{seq: seq, info: info, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	// publish syncs the ticker with the current mode and then reports the
	// new state, so observers that see Active know the ticker is running.
	publish := func() {
		mode := tracker.Mode()
		switch {
		case mode == Active && ticker == nil:
			ticker = p.opts.Clock.Ticker(p.opts.Interval)
			tick = ticker.C
			p.logger.DebugContext(ctx, "auto refresh started", "interval", p.opts.Interval)
		case mode != Active:
			stopTicker()
		}

		snap := tracker.Snapshot(p.signature)
		snap.UpdatedAt = p.opts.Clock.Now()

		p.mu.Lock()
		prev := p.latest.Mode
		p.latest = snap
		p.mu.Unlock()

		if prev != snap.Mode && p.opts.Metrics != nil {
			p.opts.Metrics.RecordPollerModeChange(snap.Mode.String())
		}
		if p.opts.OnUpdate != nil {
			p.opts.OnUpdate(snap)
		}
	}

	if tracker.Status() == nil && p.opts.ClusterStatus == cluster.Connected {
		fetch("initial")
	}
	publish()

	for {
		select {
		case <-ctx.Done():
			return

		case <-tick:
			// a slow node must not pile up auto fetches
			if tracker.InFlight() {
				p.logger.DebugContext(ctx, "skipping auto refresh, fetch still in flight")
				continue
			}
			fetch("auto")
			publish()

		case <-p.refreshCh:
			fetch("manual")
			publish()

		case visible := <-p.visibleCh:
			if visible == tracker.Visible() {
				continue
			}
			tracker.SetVisible(visible)
			publish()

		case res := <-p.resultCh:
			var applied bool
			if res.err != nil {
				applied = tracker.Fail(res.seq, res.err)
				if applied {
					p.logger.WarnContext(ctx, "failed to fetch transaction status", "seq", res.seq, "error", res.err)
				}
			} else {
				applied = tracker.Complete(res.seq, res.info)
			}
			if !applied {
				p.logger.DebugContext(ctx, "discarded stale status response", "seq", res.seq)
				if p.opts.Metrics != nil {
					p.opts.Metrics.RecordPollerStaleResponse()
				}
				continue
			}
			publish()
		}
	}
}
