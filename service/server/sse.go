package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/config"
	"github.com/brojonat/roxscan/service/explorer"
	"github.com/brojonat/roxscan/service/metrics"
	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/txstatus"
)

// keepaliveInterval is how often an idle stream sends a comment line.
const keepaliveInterval = 10 * time.Second

// explorerFactory builds the explorer service for a cluster selection.
type explorerFactory func(sel cluster.Selection) *explorer.Service

// FeedSubscriber delivers published status events for one signature until ctx
// is done.
type FeedSubscriber func(ctx context.Context, signature string, fn func(*natspkg.TxStatusEvent)) error

// NATSFeed returns a FeedSubscriber that reads the JetStream status stream.
func NATSFeed(natsURL string, logger *slog.Logger) FeedSubscriber {
	return func(ctx context.Context, signature string, fn func(*natspkg.TxStatusEvent)) error {
		return natspkg.Subscribe(ctx, natsURL, natspkg.SubscribeOptions{Signature: signature}, logger, fn)
	}
}

// startStream sets the SSE headers and lifts the server write deadline, which
// would otherwise cut long-lived streams.
func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.WriteHeader(http.StatusOK)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flush(w)
	return nil
}

func writeKeepalive(w http.ResponseWriter) {
	fmt.Fprintf(w, ": keepalive\n\n")
	flush(w)
}

// streamConnected is the payload of the first event on a status stream.
type streamConnected struct {
	ViewID        string         `json:"view_id"`
	Signature     string         `json:"signature"`
	Cluster       string         `json:"cluster"`
	ClusterStatus cluster.Status `json:"cluster_status"`
}

// publishKey identifies the confirmation state of an event. Events are only
// published to NATS when it changes.
func publishKey(e *natspkg.TxStatusEvent) string {
	return fmt.Sprintf("%s|%t|%s|%s|%s|%s", e.FetchStatus, e.Found, e.Confirmations, e.ConfirmationStatus, e.Mode, e.Error)
}

// handleStreamTransaction opens a status view for a signature and streams its
// snapshots. The view lives as long as the connection; clients control it
// through the view endpoints using the id from the connected event.
func handleStreamTransaction(explorerFor explorerFactory, views *ViewRegistry, publisher natspkg.Publisher, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.PathValue("signature")
		if _, err := solana.ParseSignature(signature); err != nil {
			writeError(w, fmt.Sprintf(`Signature "%s" is not valid`, signature), http.StatusBadRequest)
			return
		}

		sel, err := cluster.SelectionFromQuery(r.URL.Query())
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slug := sel.Cluster.Slug()
		svc := explorerFor(sel)

		probeCtx, cancel := context.WithTimeout(r.Context(), cfg.RPCTimeout)
		info := svc.ClusterInfo(probeCtx)
		cancel()

		startStream(w)

		updates := make(chan txstatus.Snapshot, 1)
		poller := txstatus.New(signature, svc, txstatus.Options{
			Interval:      cfg.AutoRefreshInterval,
			Bailout:       cfg.ZeroConfirmationBailout,
			ClusterStatus: info.Status,
			OnUpdate: func(snap txstatus.Snapshot) {
				// latest wins
				for {
					select {
					case updates <- snap:
						return
					default:
					}
					select {
					case <-updates:
					default:
					}
				}
			},
			Logger:  logger,
			Metrics: m,
		})
		view := views.Add(signature, sel, poller)
		defer views.Remove(view.ID)

		poller.Start(r.Context())

		if m != nil {
			m.RecordSSEConnectionChange(slug, 1)
			defer m.RecordSSEConnectionChange(slug, -1)
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"view_id", view.ID,
			"signature", signature,
			"cluster", slug,
			"remote_addr", r.RemoteAddr,
		)

		send := func(event string, data any) bool {
			if err := writeEvent(w, event, data); err != nil {
				logger.DebugContext(r.Context(), "failed to write event", "event", event, "error", err)
				return false
			}
			if m != nil {
				m.RecordSSEEventSent(event)
			}
			return true
		}

		if !send("connected", streamConnected{
			ViewID:        view.ID,
			Signature:     signature,
			Cluster:       slug,
			ClusterStatus: info.Status,
		}) {
			return
		}
		if !send("status", poller.Snapshot()) {
			return
		}

		var lastPublished string
		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				writeKeepalive(w)

			case snap := <-updates:
				if !send("status", snap) {
					return
				}
				if publisher == nil || snap.FetchStatus == txstatus.Fetching {
					continue
				}
				event := natspkg.FromSnapshot(slug, snap)
				if key := publishKey(event); key != lastPublished {
					if err := publisher.PublishStatus(r.Context(), event); err != nil {
						logger.WarnContext(r.Context(), "failed to publish status event",
							"signature", signature,
							"error", err,
						)
						continue
					}
					lastPublished = key
				}

			case <-poller.Done():
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"view_id", view.ID,
					"signature", signature,
				)
				return
			}
		}
	})
}

// handleStreamFeed relays status events published by other explorer
// instances and watch workflows for one signature.
func handleStreamFeed(feed FeedSubscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.PathValue("signature")
		if _, err := solana.ParseSignature(signature); err != nil {
			writeError(w, fmt.Sprintf(`Signature "%s" is not valid`, signature), http.StatusBadRequest)
			return
		}

		startStream(w)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := make(chan *natspkg.TxStatusEvent, 10)
		errc := make(chan error, 1)
		go func() {
			errc <- feed(ctx, signature, func(e *natspkg.TxStatusEvent) {
				select {
				case events <- e:
				case <-ctx.Done():
				}
			})
		}()

		if m != nil {
			m.RecordSSEConnectionChange("feed", 1)
			defer m.RecordSSEConnectionChange("feed", -1)
		}

		if err := writeEvent(w, "connected", map[string]string{"signature": signature}); err != nil {
			return
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				writeKeepalive(w)

			case e := <-events:
				if err := writeEvent(w, "status", e); err != nil {
					return
				}
				if m != nil {
					m.RecordSSEEventSent("status")
				}

			case err := <-errc:
				if err != nil {
					logger.ErrorContext(r.Context(), "status feed failed", "signature", signature, "error", err)
					_ = writeEvent(w, "error", map[string]string{"error": "failed to subscribe"})
				}
				return

			case <-r.Context().Done():
				return
			}
		}
	})
}
