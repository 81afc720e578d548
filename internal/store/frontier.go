package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/model"
)

// LeaseDuration is the window a claimed job holds before it becomes
// eligible for reclaim by another claim_next call.
const LeaseDuration = 5 * time.Minute

// Enqueue inserts a new Queued job for url. A pre-existing row for the
// same url surfaces as ErrDuplicateURL (I1, the unique-URL invariant).
func (s *Store) Enqueue(ctx context.Context, url string) (model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (url, status, expiry, last_updated, created_at)
		VALUES ($1, $2, NULL, now(), now())
		RETURNING id, url, status, expiry, last_updated, created_at
	`, url, model.StatusQueued)

	job, err := scanJob(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Job{}, ErrDuplicateURL
		}
		return model.Job{}, fmt.Errorf("enqueue %q: %w", url, err)
	}
	s.pushReadyHint(ctx, job.ID)
	return job, nil
}

// EnqueueIfAbsent is a no-op if a job for url already exists in any
// state; otherwise it enqueues as Queued. Used by the Ingestion
// Transaction for newly-discovered links, where a duplicate is
// expected and not an error.
func (s *Store) EnqueueIfAbsent(ctx context.Context, url string) error {
	_, err := s.Enqueue(ctx, url)
	if err != nil && !errors.Is(err, ErrDuplicateURL) {
		return err
	}
	return nil
}

// maxReadyHintAttempts bounds how many ready-hint candidates ClaimNext
// will try before giving up on the hint and falling back to its
// Postgres scan. A candidate is stale (already claimed, completed, or
// not yet expired) when a prior ClaimNext already consumed it; a
// handful of stale pops is still far cheaper than the scan it's meant
// to avoid.
const maxReadyHintAttempts = 5

// ClaimNext selects one Queued-or-expired-Executing row and atomically
// transitions it to Executing with a fresh lease, using optimistic
// concurrency on last_updated so two racing dispatchers never both win.
// It returns (nil, nil) when there is nothing to claim, or when this
// call lost the race for the row it picked (the caller should retry
// after a backoff, per spec.md §4.3).
//
// It first tries the Redis ready-hint queue (SPEC_FULL.md §3): a list
// of job IDs pushed by Enqueue/Fail that are likely claimable. A hint
// hit skips the Postgres scan entirely; a stale or absent hint falls
// through to the scan below unchanged. Postgres stays the source of
// truth either way — the hint only ever saves a scan, never replaces
// the atomic claim.
func (s *Store) ClaimNext(ctx context.Context) (*model.Job, error) {
	for i := 0; i < maxReadyHintAttempts; i++ {
		hintID, ok := s.popReadyHint(ctx)
		if !ok {
			break
		}
		job, err := s.claimByID(ctx, hintID)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}

	var id int64
	var lastUpdated time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT id, last_updated FROM jobs
		WHERE status = $1 OR (status = $2 AND expiry <= now())
		ORDER BY id
		LIMIT 1
	`, model.StatusQueued, model.StatusExecuting).Scan(&id, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim_next select candidate: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = $1, expiry = now() + ($2 * interval '1 second'), last_updated = now()
		WHERE id = $3 AND last_updated = $4
		RETURNING id, url, status, expiry, last_updated, created_at
	`, model.StatusExecuting, LeaseDuration.Seconds(), id, lastUpdated)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Another dispatcher won the race on this row since our select.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim_next update: %w", err)
	}
	return &job, nil
}

// claimByID attempts to claim a single ready-hint candidate directly,
// without the scan's preceding select: the UPDATE's WHERE clause is
// itself the precondition check, so a stale hint (row no longer
// Queued or expired-Executing) simply affects zero rows rather than
// racing anything. Returns (nil, nil) for a stale hint.
func (s *Store) claimByID(ctx context.Context, id int64) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = $1, expiry = now() + ($2 * interval '1 second'), last_updated = now()
		WHERE id = $3 AND (status = $4 OR (status = $1 AND expiry <= now()))
		RETURNING id, url, status, expiry, last_updated, created_at
	`, model.StatusExecuting, LeaseDuration.Seconds(), id, model.StatusQueued)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim_next by ready hint %d: %w", id, err)
	}
	return &job, nil
}

// Complete flips id to Complete, provided it is Executing with a
// live lease and url matches. Called by the Ingestion Transaction only
// after the document has been durably persisted.
func (s *Store) Complete(ctx context.Context, id int64, url string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, expiry = NULL, last_updated = now()
		WHERE id = $2 AND url = $3 AND status = $4 AND expiry > now()
	`, model.StatusComplete, id, url, model.StatusExecuting)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return requireOneRow(res, "complete job %d", id)
}

// Fail flips id back to Queued unconditionally, clearing any lease.
// spec.md §4.3 leaves attempt-counting as a future extension; this is
// the minimum behavior it requires: never leak a lease.
func (s *Store) Fail(ctx context.Context, id int64, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, expiry = NULL, last_updated = now()
		WHERE id = $2 AND url = $3
	`, model.StatusQueued, id, url)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	s.pushReadyHint(ctx, id)
	return nil
}

// ExtendLease refreshes the lease on an Executing row matching id and
// url, with no precondition on the current expiry.
func (s *Store) ExtendLease(ctx context.Context, id int64, url string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET expiry = now() + ($1 * interval '1 second'), last_updated = now()
		WHERE id = $2 AND url = $3 AND status = $4
	`, LeaseDuration.Seconds(), id, url, model.StatusExecuting)
	if err != nil {
		return fmt.Errorf("extend_lease job %d: %w", id, err)
	}
	return requireOneRow(res, "extend_lease job %d", id)
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, status, expiry, last_updated, created_at
		FROM jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// ListIncomplete returns every job not yet Complete, for the
// GetAllUrlsInQueue admin endpoint.
func (s *Store) ListIncomplete(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, status, expiry, last_updated, created_at
		FROM jobs WHERE status <> $1
		ORDER BY id
	`, model.StatusComplete)
	if err != nil {
		return nil, fmt.Errorf("list incomplete jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (model.Job, error) {
	var job model.Job
	var status string
	if err := r.Scan(&job.ID, &job.URL, &status, &job.Expiry, &job.LastUpdated, &job.CreatedAt); err != nil {
		return model.Job{}, err
	}
	job.Status = model.Status(status)
	return job, nil
}

func requireOneRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	if n == 0 {
		return ErrInvalidArgument
	}
	return nil
}
