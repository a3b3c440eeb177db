package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/roxscan/service/metrics"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when the node does not know the requested
// transaction or account.
var ErrNotFound = errors.New("not found")

// RecentSignaturesLimit is the number of signatures shown for an address.
const RecentSignaturesLimit = 25

// blockTimeCacheSize bounds the per-client slot to block time cache.
const blockTimeCacheSize = 4096

// RetryPolicy bounds how hard the client retries transient RPC failures.
type RetryPolicy struct {
	MaxTries        uint
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
}

// DefaultRetryPolicy is used when NewClient gets a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        3,
	MaxElapsedTime:  10 * time.Second,
	InitialInterval: 250 * time.Millisecond,
}

// Client provides the explorer's view of a Solana node.
// It wraps the RPC client with domain conversion, logging, metrics and retries.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // cluster slug or RPC host for metrics labels
	retry    RetryPolicy

	// block times never change for a slot, so polls reuse them
	blockTimes *lru.Cache[uint64, int64]
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g. "mainnet-beta", "devnet", "custom").
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	blockTimes, err := lru.New[uint64, int64](blockTimeCacheSize)
	if err != nil {
		panic(fmt.Sprintf("block time cache: %v", err))
	}
	return &Client{
		rpc:        rpcClient,
		logger:     logger,
		metrics:    m,
		endpoint:   endpoint,
		retry:      DefaultRetryPolicy,
		blockTimes: blockTimes,
	}
}

// WithRetryPolicy returns a copy of c using p.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	cp := *c
	cp.retry = p
	return &cp
}

// call runs op with retries for transient failures. Not-found answers are
// never retried.
func call[T any](ctx context.Context, c *Client, method string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		b.InitialInterval = c.retry.InitialInterval
	}

	operation := func() (T, error) {
		start := time.Now()
		res, err := op(ctx)
		duration := time.Since(start).Seconds()

		status := "success"
		switch {
		case err == nil:
		case errors.Is(err, rpc.ErrNotFound):
			status = "not_found"
		default:
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
		}

		if err == nil {
			return res, nil
		}
		if errors.Is(err, rpc.ErrNotFound) {
			return res, backoff.Permanent(ErrNotFound)
		}
		if !isTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		reason := "timeout_or_error"
		if isRateLimited(err) {
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
		c.logger.WarnContext(ctx, "rpc call failed, retrying",
			"method", method,
			"reason", reason,
			"backoff", next,
			"error", err,
		)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retry.MaxTries),
		backoff.WithMaxElapsedTime(c.retry.MaxElapsedTime),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, ErrNotFound
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return res, fmt.Errorf("%s: %w", method, err)
	}
	return res, nil
}

func isRateLimited(err error) bool {
	return strings.Contains(err.Error(), "429")
}

// isTransient reports whether a failure is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "timeout", "connection reset", "connection refused", "eof", "502", "503", "504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// FetchStatus returns the status of signature, or nil if the node does not
// know it. A nil confirmation count from the node means finalized.
func (c *Client) FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	out, err := call(ctx, c, "GetSignatureStatuses", func(ctx context.Context) (*rpc.GetSignatureStatusesResult, error) {
		return c.rpc.GetSignatureStatuses(ctx, true, sig)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		c.logger.DebugContext(ctx, "signature not found", "signature", signature)
		return nil, nil
	}

	value := out.Value[0]
	info := &txstatus.StatusInfo{
		Slot:               value.Slot,
		ConfirmationStatus: string(value.ConfirmationStatus),
		Err:                value.Err,
	}
	if value.Confirmations == nil {
		info.Confirmations = txstatus.MaxConfirmations()
	} else {
		info.Confirmations = txstatus.ConfirmationCount(*value.Confirmations)
	}

	info.Timestamp = c.blockTime(ctx, value.Slot)
	return info, nil
}

// blockTime returns the unix time of slot, or nil when the node has none.
// Known times are served from the cache; failures are not cached.
func (c *Client) blockTime(ctx context.Context, slot uint64) *int64 {
	if ts, ok := c.blockTimes.Get(slot); ok {
		return &ts
	}
	bt, err := call(ctx, c, "GetBlockTime", func(ctx context.Context) (*solana.UnixTimeSeconds, error) {
		return c.rpc.GetBlockTime(ctx, slot)
	})
	if err != nil {
		c.logger.DebugContext(ctx, "block time unavailable", "slot", slot, "error", err)
		return nil
	}
	if bt == nil {
		return nil
	}
	ts := int64(*bt)
	c.blockTimes.Add(slot, ts)
	return &ts
}

// TransactionDetails fetches and parses a confirmed transaction.
func (c *Client) TransactionDetails(ctx context.Context, signature string) (*TransactionDetails, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	result, err := call(ctx, c, "GetTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Transaction == nil {
		return nil, ErrNotFound
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	details, err := parseTransactionDetails(result.Slot, result.BlockTime, tx, result.Meta)
	if err != nil {
		return nil, err
	}
	if details.Signature == "" {
		details.Signature = signature
	}

	c.logger.DebugContext(ctx, "fetched transaction details",
		"signature", signature,
		"slot", details.Slot,
		"accounts", len(details.Accounts),
	)
	return details, nil
}

// NodeInfo probes the node's health, first available block and epoch.
// Any failure means the cluster is not usable.
func (c *Client) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	health, err := call(ctx, c, "GetHealth", c.rpc.GetHealth)
	if err != nil {
		return nil, err
	}

	first, err := call(ctx, c, "GetFirstAvailableBlock", c.rpc.GetFirstAvailableBlock)
	if err != nil {
		return nil, err
	}

	epoch, err := call(ctx, c, "GetEpochInfo", func(ctx context.Context) (*rpc.GetEpochInfoResult, error) {
		return c.rpc.GetEpochInfo(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return nil, err
	}

	info := &NodeInfo{
		Healthy:             health == rpc.HealthOk,
		FirstAvailableBlock: first,
	}
	if epoch != nil {
		info.Epoch = EpochInfo{
			Epoch:            epoch.Epoch,
			SlotIndex:        epoch.SlotIndex,
			SlotsInEpoch:     epoch.SlotsInEpoch,
			AbsoluteSlot:     epoch.AbsoluteSlot,
			BlockHeight:      epoch.BlockHeight,
			TransactionCount: epoch.TransactionCount,
		}
	}
	return info, nil
}

// FirstAvailableBlock returns the lowest slot the node still has.
func (c *Client) FirstAvailableBlock(ctx context.Context) (uint64, error) {
	return call(ctx, c, "GetFirstAvailableBlock", c.rpc.GetFirstAvailableBlock)
}

// Supply returns the current lamport supply.
func (c *Client) Supply(ctx context.Context) (*Supply, error) {
	out, err := call(ctx, c, "GetSupply", func(ctx context.Context) (*rpc.GetSupplyResult, error) {
		return c.rpc.GetSupply(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrNotFound
	}
	return &Supply{
		Total:          out.Value.Total,
		Circulating:    out.Value.Circulating,
		NonCirculating: out.Value.NonCirculating,
	}, nil
}

// Account returns the state of address. ErrNotFound means the account
// does not exist.
func (c *Client) Account(ctx context.Context, address string) (*Account, error) {
	pk, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	out, err := call(ctx, c, "GetAccountInfo", func(ctx context.Context) (*rpc.GetAccountInfoResult, error) {
		return c.rpc.GetAccountInfo(ctx, pk)
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrNotFound
	}

	acc := &Account{
		Address:    pk.String(),
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner.String(),
		Executable: out.Value.Executable,
		Space:      out.Value.Space,
	}
	if acc.Space == 0 {
		acc.Space = uint64(len(out.GetBinary()))
	}
	return acc, nil
}

// Balance returns the lamport balance of address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	pk, err := ParseAddress(address)
	if err != nil {
		return 0, err
	}
	out, err := call(ctx, c, "GetBalance", func(ctx context.Context) (*rpc.GetBalanceResult, error) {
		return c.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	return out.Value, nil
}

// RecentSignatures returns up to limit signatures for address, newest first.
func (c *Client) RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	pk, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = RecentSignaturesLimit
	}

	sigs, err := call(ctx, c, "GetSignaturesForAddress", func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddress(ctx, pk, &rpc.GetSignaturesForAddressOpts{Limit: &limit})
	})
	if errors.Is(err, ErrNotFound) {
		return []SignatureInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		if s == nil {
			continue
		}
		out = append(out, signatureToInfo(s))
	}
	return out, nil
}

// LatestBlockhash returns the latest blockhash with the current slot.
func (c *Client) LatestBlockhash(ctx context.Context) (*Blockhash, error) {
	out, err := call(ctx, c, "GetLatestBlockhash", func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
		return c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrNotFound
	}

	slot, err := call(ctx, c, "GetSlot", func(ctx context.Context) (uint64, error) {
		return c.rpc.GetSlot(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return nil, err
	}

	return &Blockhash{
		Blockhash:            out.Value.Blockhash.String(),
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
		Slot:                 slot,
	}, nil
}
