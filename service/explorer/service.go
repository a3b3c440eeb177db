// Package explorer builds the explorer's page models from a Solana node and
// the finalized-transaction cache. Every failure ends up as a card on the
// page; page builders never return errors.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/db"
	"github.com/brojonat/roxscan/service/metrics"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/txstatus"
)

// Node is the subset of the Solana client the explorer reads from.
type Node interface {
	FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error)
	TransactionDetails(ctx context.Context, signature string) (*solana.TransactionDetails, error)
	NodeInfo(ctx context.Context) (*solana.NodeInfo, error)
	Supply(ctx context.Context) (*solana.Supply, error)
	Account(ctx context.Context, address string) (*solana.Account, error)
	RecentSignatures(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error)
	LatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
}

// Cache stores transactions that reached max confirmations.
type Cache interface {
	Get(ctx context.Context, cluster, signature string) (*db.FinalizedTransaction, error)
	Put(ctx context.Context, txn *db.FinalizedTransaction) (bool, error)
}

// Card is an error or placeholder card shown instead of page content.
type Card struct {
	Text    string `json:"text"`
	Subtext string `json:"subtext,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

const rpcNotResponding = "RPC is not responding. Please change your RPC url and try again."

// Service builds pages for one cluster selection.
type Service struct {
	selection cluster.Selection
	node      Node
	cache     Cache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService creates a Service. cache and m may be nil.
func NewService(sel cluster.Selection, node Node, cache Cache, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		selection: sel,
		node:      node,
		cache:     cache,
		metrics:   m,
		logger:    logger.With("cluster", sel.Cluster.Slug()),
	}
}

// Selection returns the cluster selection the service reads from.
func (s *Service) Selection() cluster.Selection {
	return s.selection
}

// ClusterInfo is the result of probing the selected node.
type ClusterInfo struct {
	Cluster             cluster.Cluster   `json:"cluster"`
	Name                string            `json:"name"`
	Status              cluster.Status    `json:"status"`
	FirstAvailableBlock uint64            `json:"first_available_block"`
	Epoch               *solana.EpochInfo `json:"epoch,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// ClusterInfo probes the node. Any probe failure yields Status Failure.
func (s *Service) ClusterInfo(ctx context.Context) ClusterInfo {
	info := ClusterInfo{
		Cluster: s.selection.Cluster,
		Name:    s.selection.Cluster.Name(),
		Status:  cluster.Connected,
	}

	node, err := s.node.NodeInfo(ctx)
	if err == nil && !node.Healthy {
		err = errors.New("node is unhealthy")
	}
	if err != nil {
		s.logger.WarnContext(ctx, "cluster probe failed", "error", err)
		info.Status = cluster.Failure
		info.Error = err.Error()
		return info
	}

	epoch := node.Epoch
	info.FirstAvailableBlock = node.FirstAvailableBlock
	info.Epoch = &epoch
	return info
}

func (s *Service) recordPage(page, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordExplorerPage(page, outcome)
	}
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(result)
	}
}

// cachedTransaction is the payload stored for a finalized transaction.
type cachedTransaction struct {
	Status  *txstatus.StatusInfo       `json:"status"`
	Details *solana.TransactionDetails `json:"details"`
}

// lookupCache returns the cached transaction or nil. Cache failures are
// logged and treated as misses.
func (s *Service) lookupCache(ctx context.Context, signature string) *cachedTransaction {
	key, ok := s.selection.CacheKey()
	if s.cache == nil || !ok {
		return nil
	}

	row, err := s.cache.Get(ctx, key, signature)
	if errors.Is(err, db.ErrNotFound) {
		s.recordCache("miss")
		return nil
	}
	if err != nil {
		s.recordCache("error")
		s.logger.WarnContext(ctx, "finalized cache lookup failed", "signature", signature, "error", err)
		return nil
	}

	var cached cachedTransaction
	if err := json.Unmarshal(row.Payload, &cached); err != nil || cached.Status == nil {
		s.recordCache("error")
		s.logger.WarnContext(ctx, "finalized cache payload unreadable", "signature", signature, "error", err)
		return nil
	}
	s.recordCache("hit")
	return &cached
}

// storeCache records a finalized transaction. Only max confirmations on a
// stable cluster are stored.
func (s *Service) storeCache(ctx context.Context, signature string, info *txstatus.StatusInfo, details *solana.TransactionDetails) {
	key, ok := s.selection.CacheKey()
	if s.cache == nil || !ok || !info.Finalized() || details == nil {
		return
	}

	payload, err := json.Marshal(cachedTransaction{Status: info, Details: details})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode finalized transaction", "signature", signature, "error", err)
		return
	}

	row := &db.FinalizedTransaction{
		Signature: signature,
		Cluster:   key,
		Slot:      int64(info.Slot),
		Fee:       int64(details.Fee),
		Payload:   payload,
	}
	if info.Timestamp != nil {
		t := time.Unix(*info.Timestamp, 0).UTC()
		row.BlockTime = &t
	}
	if info.Err != nil {
		if raw, err := json.Marshal(info.Err); err == nil {
			row.Err = raw
		}
	}

	inserted, err := s.cache.Put(ctx, row)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to cache finalized transaction", "signature", signature, "error", err)
		return
	}
	if inserted {
		s.logger.DebugContext(ctx, "cached finalized transaction", "signature", signature, "slot", info.Slot)
	}
}

// FetchStatus reads a signature's status, answering from the finalized cache
// when possible. It satisfies txstatus.Fetcher.
func (s *Service) FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error) {
	if cached := s.lookupCache(ctx, signature); cached != nil {
		return cached.Status, nil
	}
	return s.node.FetchStatus(ctx, signature)
}

// Status validates raw and returns its status. A nil info with a nil error
// means the node does not know the signature.
func (s *Service) Status(ctx context.Context, raw string) (*txstatus.StatusInfo, error) {
	if _, err := solana.ParseSignature(raw); err != nil {
		return nil, err
	}
	info, err := s.FetchStatus(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	return info, nil
}
