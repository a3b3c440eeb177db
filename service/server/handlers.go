package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/config"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/temporal"
	"github.com/brojonat/roxscan/service/txstatus"
)

const maxRequestBodySize = 1 << 10 // visibility toggles are tiny

// requestHostname returns the hostname the client used to reach us, without
// the port.
func requestHostname(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		return r.Host
	}
	return host
}

// clusterResponse is the JSON response format for a cluster probe.
type clusterResponse struct {
	Cluster             string            `json:"cluster"`
	Name                string            `json:"name"`
	RPCURL              string            `json:"rpc_url"`
	Status              string            `json:"status"`
	FirstAvailableBlock uint64            `json:"first_available_block"`
	Epoch               *solana.EpochInfo `json:"epoch,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// handleClusterInfo probes the selected cluster.
// GET /api/v1/cluster?cluster={slug}&customUrl={url}
func handleClusterInfo(explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sel, err := cluster.SelectionFromQuery(r.URL.Query())
		if err != nil {
			logger.Debug("invalid cluster selection", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		info := explorerFor(sel).ClusterInfo(ctx)

		resp := clusterResponse{
			Cluster:             sel.Cluster.Slug(),
			Name:                info.Name,
			RPCURL:              resolver.ClientURL(sel.Cluster, sel.CustomURL, requestHostname(r)),
			Status:              info.Status.String(),
			FirstAvailableBlock: info.FirstAvailableBlock,
			Epoch:               info.Epoch,
			Error:               info.Error,
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// statusResponse is the JSON response format for a one-off status lookup.
type statusResponse struct {
	Signature string               `json:"signature"`
	Cluster   string               `json:"cluster"`
	Found     bool                 `json:"found"`
	Finalized bool                 `json:"finalized"`
	Info      *txstatus.StatusInfo `json:"info,omitempty"`
}

// handleTransactionStatus fetches a signature's status once.
// GET /api/v1/tx/{signature}/status?cluster={slug}
func handleTransactionStatus(explorerFor explorerFactory, timeout time.Duration, logger *slog.Logger) http.Handler {
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

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		info, err := explorerFor(sel).Status(ctx, signature)
		if err != nil {
			logger.Warn("status lookup failed", "signature", signature, "cluster", sel.Cluster.Slug(), "error", err)
			writeError(w, "failed to fetch transaction status", http.StatusBadGateway)
			return
		}

		writeJSON(w, statusResponse{
			Signature: signature,
			Cluster:   sel.Cluster.Slug(),
			Found:     info != nil,
			Finalized: info.Finalized(),
			Info:      info,
		}, http.StatusOK)
	})
}

// handleGetView returns the latest snapshot of a live view.
// GET /api/v1/views/{id}
func handleGetView(views *ViewRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, ok := views.Get(r.PathValue("id"))
		if !ok {
			writeError(w, "view not found", http.StatusNotFound)
			return
		}
		writeJSON(w, view.Poller.Snapshot(), http.StatusOK)
	})
}

// handleSetVisibility reports whether the page showing a view is visible.
// POST /api/v1/views/{id}/visibility {"visible": bool}
func handleSetVisibility(views *ViewRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Visible *bool `json:"visible"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode visibility request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.Visible == nil {
			writeError(w, "visible is required", http.StatusBadRequest)
			return
		}

		id := r.PathValue("id")
		view, ok := views.Get(id)
		if !ok {
			writeError(w, "view not found", http.StatusNotFound)
			return
		}

		if err := view.Poller.SetVisible(*req.Visible); err != nil {
			writeViewError(w, err)
			return
		}
		logger.Debug("view visibility changed", "view_id", id, "visible", *req.Visible)
		w.WriteHeader(http.StatusAccepted)
	})
}

// handleRefreshView triggers a manual refetch.
// POST /api/v1/views/{id}/refresh
func handleRefreshView(views *ViewRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		view, ok := views.Get(id)
		if !ok {
			writeError(w, "view not found", http.StatusNotFound)
			return
		}

		if err := view.Poller.Refresh(); err != nil {
			writeViewError(w, err)
			return
		}
		logger.Debug("view refresh requested", "view_id", id)
		w.WriteHeader(http.StatusAccepted)
	})
}

func writeViewError(w http.ResponseWriter, err error) {
	if errors.Is(err, txstatus.ErrPollerClosed) {
		writeError(w, "view is closed", http.StatusGone)
		return
	}
	writeError(w, err.Error(), http.StatusInternalServerError)
}

// watchRequest reads the signature and cluster of a watch request.
func watchRequest(w http.ResponseWriter, r *http.Request) (string, cluster.Selection, bool) {
	signature := r.PathValue("signature")
	if _, err := solana.ParseSignature(signature); err != nil {
		writeError(w, fmt.Sprintf(`Signature "%s" is not valid`, signature), http.StatusBadRequest)
		return "", cluster.Selection{}, false
	}
	sel, err := cluster.SelectionFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return "", cluster.Selection{}, false
	}
	return signature, sel, true
}

// handleStartWatch starts a durable watch workflow for a signature.
// POST /api/v1/tx/{signature}/watch?cluster={slug}
func handleStartWatch(watcher temporal.Watcher, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature, sel, ok := watchRequest(w, r)
		if !ok {
			return
		}

		run, err := watcher.StartWatch(r.Context(), temporal.WatchInput{
			Signature: signature,
			Cluster:   sel.Cluster,
			CustomURL: sel.CustomURL,
			Interval:  cfg.AutoRefreshInterval,
			Bailout:   cfg.ZeroConfirmationBailout,
			Timeout:   cfg.WatchTimeout,
		})
		if err != nil {
			logger.Error("failed to start watch", "signature", signature, "cluster", sel.Cluster.Slug(), "error", err)
			writeError(w, "failed to start watch", http.StatusInternalServerError)
			return
		}

		logger.Info("watch started", "signature", signature, "workflow_id", run.WorkflowID)
		writeJSON(w, run, http.StatusAccepted)
	})
}

// handleDescribeWatch returns the state of the watch for a signature.
// GET /api/v1/tx/{signature}/watch?cluster={slug}
func handleDescribeWatch(watcher temporal.Watcher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature, sel, ok := watchRequest(w, r)
		if !ok {
			return
		}

		status, err := watcher.DescribeWatch(r.Context(), sel.Cluster, signature)
		if errors.Is(err, temporal.ErrWatchNotFound) {
			writeError(w, "watch not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to describe watch", "signature", signature, "error", err)
			writeError(w, "failed to describe watch", http.StatusInternalServerError)
			return
		}
		writeJSON(w, status, http.StatusOK)
	})
}

// handleCancelWatch stops the watch for a signature.
// DELETE /api/v1/tx/{signature}/watch?cluster={slug}
func handleCancelWatch(watcher temporal.Watcher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature, sel, ok := watchRequest(w, r)
		if !ok {
			return
		}

		err := watcher.CancelWatch(r.Context(), sel.Cluster, signature)
		if errors.Is(err, temporal.ErrWatchNotFound) {
			writeError(w, "watch not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to cancel watch", "signature", signature, "error", err)
			writeError(w, "failed to cancel watch", http.StatusInternalServerError)
			return
		}

		logger.Info("watch cancelled", "signature", signature, "cluster", sel.Cluster.Slug())
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
