package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Status poller metrics
	pollersActive        prometheus.Gauge
	pollerFetchesTotal   *prometheus.CounterVec
	pollerModeChanges    *prometheus.CounterVec
	pollerStaleResponses prometheus.Counter

	// Explorer metrics
	explorerPagesTotal   *prometheus.CounterVec
	finalizedCacheLookup *prometheus.CounterVec

	// Workflow Metrics
	watchWorkflowDuration   *prometheus.HistogramVec
	watchWorkflowExecutions *prometheus.CounterVec
	watchActivityDuration   *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		pollersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txstatus_pollers_active",
				Help: "Number of running transaction status pollers",
			},
		),
		pollerFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txstatus_fetches_total",
				Help: "Total number of status fetches issued by pollers",
			},
			[]string{"reason"},
		),
		pollerModeChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txstatus_mode_changes_total",
				Help: "Total number of auto-refresh mode transitions by target mode",
			},
			[]string{"mode"},
		),
		pollerStaleResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "txstatus_stale_responses_total",
				Help: "Total number of status responses discarded because a newer one was applied",
			},
		),

		explorerPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_pages_total",
				Help: "Total number of explorer views built by page and outcome",
			},
			[]string{"page", "outcome"},
		),
		finalizedCacheLookup: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalized_cache_lookups_total",
				Help: "Total number of finalized transaction cache lookups",
			},
			[]string{"result"},
		),

		// Workflow Metrics
		watchWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_workflow_duration_seconds",
				Help:    "Duration of transaction watch workflows in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		watchWorkflowExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_workflow_executions_total",
				Help: "Total number of transaction watch workflow executions",
			},
			[]string{"outcome"},
		),
		watchActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_activity_duration_seconds",
				Help:    "Duration of watch workflow activities in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"activity", "cluster"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"cluster"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"stream", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"stream"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Poller metric helpers

// RecordPollerChange records a poller starting (+1) or stopping (-1).
func (m *Metrics) RecordPollerChange(delta float64) {
	m.pollersActive.Add(delta)
}

// RecordPollerFetch records a status fetch. reason is initial, auto or manual.
func (m *Metrics) RecordPollerFetch(reason string) {
	m.pollerFetchesTotal.WithLabelValues(reason).Inc()
}

// RecordPollerModeChange records a transition into mode.
func (m *Metrics) RecordPollerModeChange(mode string) {
	m.pollerModeChanges.WithLabelValues(mode).Inc()
}

// RecordPollerStaleResponse records a discarded out-of-order response.
func (m *Metrics) RecordPollerStaleResponse() {
	m.pollerStaleResponses.Inc()
}

// Explorer metric helpers

// RecordExplorerPage records a page build and how it ended
// (ok, invalid, not_found, rpc_failure, fetch_failed).
func (m *Metrics) RecordExplorerPage(page, outcome string) {
	m.explorerPagesTotal.WithLabelValues(page, outcome).Inc()
}

// RecordCacheLookup records a finalized cache lookup (hit, miss, error).
func (m *Metrics) RecordCacheLookup(result string) {
	m.finalizedCacheLookup.WithLabelValues(result).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(outcome string, duration float64) {
	m.watchWorkflowDuration.WithLabelValues(outcome).Observe(duration)
	m.watchWorkflowExecutions.WithLabelValues(outcome).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, cluster string, duration float64) {
	m.watchActivityDuration.WithLabelValues(activity, cluster).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(cluster string, delta float64) {
	m.sseActiveConnections.WithLabelValues(cluster).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(stream, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(stream, status).Inc()
	m.natsPublishDuration.WithLabelValues(stream).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
