// Package store is the Frontier Store and canonical-document persistence
// layer: hand-written SQL over database/sql and the pgx stdlib driver,
// implementing the operations spec.md §4.3 and §4.4 describe.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Sentinel errors returned by Store methods. Callers in internal/dispatcher
// map these onto RPC-level status codes.
var (
	// ErrInvalidArgument signals a precondition failure: the row didn't
	// exist, wasn't in the expected state, or the url didn't match.
	ErrInvalidArgument = errors.New("store: invalid argument")
	// ErrDuplicateURL signals a unique-constraint violation on jobs.url.
	ErrDuplicateURL = errors.New("store: duplicate url")
	// ErrNotFound signals a row lookup that found nothing.
	ErrNotFound = errors.New("store: not found")
)

// Store wraps a pooled *sql.DB and exposes the Frontier Store and
// document/search-history persistence operations.
type Store struct {
	db    *sql.DB
	ready *redis.Client
}

// New builds a Store over an already-configured, already-pooled *sql.DB
// (see cmd/coordinator for pool sizing). ready is the optional
// claim-next ready-hint client (SPEC_FULL.md §3): a Redis list of
// job IDs ClaimNext tries before falling back to its Postgres scan.
// It may be nil, in which case ClaimNext always scans Postgres
// directly — Postgres remains the source of truth either way.
func New(db *sql.DB, ready *redis.Client) *Store {
	return &Store{db: db, ready: ready}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// readyHintKey is the Redis list ClaimNext pops candidate job IDs from.
const readyHintKey = "siftcrawl:ready"

// pushReadyHint records id as freshly claimable. Best-effort: a push
// failure only costs ClaimNext a cheap Redis round trip later, since it
// always falls back to the Postgres scan.
func (s *Store) pushReadyHint(ctx context.Context, id int64) {
	if s.ready == nil {
		return
	}
	_ = s.ready.RPush(ctx, readyHintKey, id).Err()
}

// popReadyHint returns a candidate job ID pushed by a prior Enqueue or
// Fail, or ok=false if the hint is unset, empty, or unreachable.
func (s *Store) popReadyHint(ctx context.Context) (id int64, ok bool) {
	if s.ready == nil {
		return 0, false
	}
	v, err := s.ready.LPop(ctx, readyHintKey).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
