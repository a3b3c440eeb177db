package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/roxscan/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

const finalizedTable = "finalized_transactions"

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, metrics: m, logger: logger}
}

// Connect opens a pool for dbURL and verifies it with a ping.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FinalizedTransaction is a transaction whose status can no longer change.
// Payload holds the rendered view data so a cached page needs no RPC.
type FinalizedTransaction struct {
	Signature string
	Cluster   string // cluster slug, never "custom"
	Slot      int64
	BlockTime *time.Time
	Err       json.RawMessage // nil on success
	Fee       int64
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Failed reports whether the cached transaction carried an error.
func (t *FinalizedTransaction) Failed() bool {
	return len(t.Err) > 0 && string(t.Err) != "null"
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, finalizedTable, time.Since(start).Seconds(), err)
}

// Get returns the cached transaction for (cluster, signature) or ErrNotFound.
func (s *Store) Get(ctx context.Context, cluster, signature string) (txn *FinalizedTransaction, err error) {
	defer func(start time.Time) { s.record("get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		SELECT signature, cluster, slot, block_time, err, fee, payload, created_at
		FROM finalized_transactions
		WHERE cluster = $1 AND signature = $2
	`, cluster, signature)

	txn, err = scanFinalized(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get finalized transaction: %w", err)
	}
	return txn, nil
}

// Put stores txn unless the row already exists. Finalized data never
// changes, so an existing row is left alone and inserted is false.
func (s *Store) Put(ctx context.Context, txn *FinalizedTransaction) (inserted bool, err error) {
	defer func(start time.Time) { s.record("put", start, err) }(time.Now())

	if txn.Cluster == "" || txn.Signature == "" {
		return false, fmt.Errorf("put finalized transaction: cluster and signature are required")
	}
	payload := txn.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO finalized_transactions (signature, cluster, slot, block_time, err, fee, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cluster, signature) DO NOTHING
	`,
		txn.Signature,
		txn.Cluster,
		txn.Slot,
		pgTimestamptzFromPtr(txn.BlockTime),
		nullableJSON(txn.Err),
		txn.Fee,
		[]byte(payload),
	)
	if err != nil {
		return false, fmt.Errorf("put finalized transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns the most recently cached transactions, newest first.
// An empty cluster lists every cluster.
func (s *Store) List(ctx context.Context, cluster string, limit int) (txns []*FinalizedTransaction, err error) {
	defer func(start time.Time) { s.record("list", start, err) }(time.Now())

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT signature, cluster, slot, block_time, err, fee, payload, created_at
		FROM finalized_transactions
		WHERE $1 = '' OR cluster = $1
		ORDER BY created_at DESC, slot DESC
		LIMIT $2
	`, cluster, limit)
	if err != nil {
		return nil, fmt.Errorf("list finalized transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanFinalized(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finalized transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list finalized transactions: %w", err)
	}
	return txns, nil
}

// Delete removes a cached transaction. It reports ErrNotFound if nothing was removed.
func (s *Store) Delete(ctx context.Context, cluster, signature string) (err error) {
	defer func(start time.Time) { s.record("delete", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM finalized_transactions WHERE cluster = $1 AND signature = $2
	`, cluster, signature)
	if err != nil {
		return fmt.Errorf("delete finalized transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFinalized(row pgx.Row) (*FinalizedTransaction, error) {
	var (
		txn       FinalizedTransaction
		blockTime pgtype.Timestamptz
		errJSON   []byte
		payload   []byte
	)
	if err := row.Scan(
		&txn.Signature,
		&txn.Cluster,
		&txn.Slot,
		&blockTime,
		&errJSON,
		&txn.Fee,
		&payload,
		&txn.CreatedAt,
	); err != nil {
		return nil, err
	}
	txn.BlockTime = timePtrFromPgTimestamptz(blockTime)
	if len(errJSON) > 0 {
		txn.Err = json.RawMessage(errJSON)
	}
	txn.Payload = json.RawMessage(payload)
	return &txn, nil
}

// Helper functions for converting between domain types and pgtype

func pgTimestamptzFromPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}
