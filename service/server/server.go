package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/config"
	"github.com/brojonat/roxscan/service/explorer"
	"github.com/brojonat/roxscan/service/metrics"
	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeFactory returns the node to read from for a cluster selection.
type NodeFactory func(sel cluster.Selection) explorer.Node

// SolanaNodes returns a NodeFactory backed by solana.Client. Clients for the
// built-in clusters are reused; custom endpoints get a fresh client.
func SolanaNodes(resolver *cluster.Resolver, m *metrics.Metrics, logger *slog.Logger) NodeFactory {
	var mu sync.Mutex
	clients := make(map[cluster.Cluster]*solana.Client)

	return func(sel cluster.Selection) explorer.Node {
		endpoint := resolver.ServerURL(sel.Cluster, sel.CustomURL)
		if sel.Cluster == cluster.Custom {
			return solana.NewClient(solana.NewRPCClient(endpoint), sel.Cluster.Slug(), m, logger)
		}

		mu.Lock()
		defer mu.Unlock()
		c, ok := clients[sel.Cluster]
		if !ok {
			c = solana.NewClient(solana.NewRPCClient(endpoint), sel.Cluster.Slug(), m, logger)
			clients[sel.Cluster] = c
		}
		return c
	}
}

// Server represents the HTTP server for the explorer.
type Server struct {
	addr      string
	cfg       *config.Config
	resolver  *cluster.Resolver
	nodes     NodeFactory
	cache     explorer.Cache
	publisher natspkg.Publisher
	feed      FeedSubscriber
	watcher   temporal.Watcher
	views     *ViewRegistry
	renderer  *TemplateRenderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The cache is optional - if nil, finalized transactions are always read from the node.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, nodes NodeFactory, cache explorer.Cache, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		cfg:      cfg,
		resolver: cfg.Resolver(),
		nodes:    nodes,
		cache:    cache,
		views:    NewViewRegistry(logger),
		metrics:  m,
		logger:   logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// WithPublisher publishes poller snapshots to NATS whenever a transaction's
// confirmation state changes.
func (s *Server) WithPublisher(p natspkg.Publisher) *Server {
	s.publisher = p
	return s
}

// WithFeed enables the NATS status feed relay endpoint.
func (s *Server) WithFeed(f FeedSubscriber) *Server {
	s.feed = f
	return s
}

// WithWatcher enables the durable watch endpoints.
func (s *Server) WithWatcher(w temporal.Watcher) *Server {
	s.watcher = w
	return s
}

// Views returns the registry of live status views.
func (s *Server) Views() *ViewRegistry {
	return s.views
}

// explorerFor builds the explorer service for a cluster selection.
func (s *Server) explorerFor(sel cluster.Selection) *explorer.Service {
	return explorer.NewService(sel, s.nodes(sel), s.cache, s.metrics, s.logger)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	timeout := s.cfg.RPCTimeout

	// JSON API
	s.handle(mux, "GET /api/v1/cluster", handleClusterInfo(s.explorerFor, s.resolver, timeout, s.logger))
	s.handle(mux, "GET /api/v1/tx/{signature}/status", handleTransactionStatus(s.explorerFor, timeout, s.logger))

	// Status views
	s.handle(mux, "GET /api/v1/stream/tx/{signature}", handleStreamTransaction(s.explorerFor, s.views, s.publisher, s.cfg, s.metrics, s.logger))
	s.handle(mux, "GET /api/v1/views/{id}", handleGetView(s.views, s.logger))
	s.handle(mux, "POST /api/v1/views/{id}/visibility", handleSetVisibility(s.views, s.logger))
	s.handle(mux, "POST /api/v1/views/{id}/refresh", handleRefreshView(s.views, s.logger))

	// Status feed relayed from NATS (if configured)
	if s.feed != nil {
		s.handle(mux, "GET /api/v1/feed/tx/{signature}", handleStreamFeed(s.feed, s.metrics, s.logger))
		s.logger.Info("status feed endpoint enabled")
	}

	// Durable watches (if Temporal is configured)
	if s.watcher != nil {
		s.handle(mux, "POST /api/v1/tx/{signature}/watch", handleStartWatch(s.watcher, s.cfg, s.logger))
		s.handle(mux, "GET /api/v1/tx/{signature}/watch", handleDescribeWatch(s.watcher, s.logger))
		s.handle(mux, "DELETE /api/v1/tx/{signature}/watch", handleCancelWatch(s.watcher, s.logger))
		s.logger.Info("watch endpoints enabled")
	} else {
		s.logger.Warn("temporal not configured, watch endpoints disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		s.handle(mux, "GET /{$}", handleHomePage(s.renderer, s.explorerFor, s.resolver, timeout))
		s.handle(mux, "GET /search", handleSearch())
		s.handle(mux, "GET /tx/{signature}", handleTransactionPage(s.renderer, s.explorerFor, s.resolver, timeout))
		s.handle(mux, "GET /address/{address}", handleAddressPage(s.renderer, s.explorerFor, s.resolver, timeout))
		s.handle(mux, "GET /address/{address}/qr.png", handleAddressQRCode(s.logger))
		s.handle(mux, "GET /supply", handleSupplyPage(s.renderer, s.explorerFor, s.resolver, timeout))
		s.handle(mux, "GET /blockhashes", handleBlockhashesPage(s.renderer, s.explorerFor, s.resolver, timeout))
		s.handle(mux, "GET /", handleNotFoundPage(s.renderer, s.resolver))
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // streams clear their own deadline
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close live views first so no poller outlives its stream
	s.views.CloseAll()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
