package workerloop

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
)

// initialBackoff, backoffMultiplier, maxBackoff, and maxAttempts
// implement spec.md §4.5 step 1: "initial 100ms, multiplier tuned so
// 128 steps span up to 10 minutes, capped at 10 minutes". 1.1^128 ≈
// 2.0e5, which comfortably reaches the 10-minute cap well before the
// 128th attempt (around the 92nd step); the cap is what actually bounds the sleep.
const (
	initialBackoff    = 100 * time.Millisecond
	backoffMultiplier = 1.1
	maxBackoff        = 10 * time.Minute
	maxAttempts       = 128
)

// fetcher is the page-fetch dependency; *HTTPFetcher satisfies it.
type fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, int, error)
}

// backendClient is the BackendClient surface the loop needs, narrowed
// for testability.
type backendClient interface {
	GetJob(ctx context.Context) (*Job, error)
	ReturnJobOk(ctx context.Context, id int64, url string, result *extract.Result) error
	ReturnJobErr(ctx context.Context, id int64, url string) error
}

// Loop drives one worker's GetJob/fetch/extract/ReturnJob cycle.
type Loop struct {
	backend     backendClient
	fetcher     fetcher
	extractor   *extract.Extractor
	logger      *slog.Logger
	maxAttempts int
	sleepFunc   func(ctx context.Context, d time.Duration) bool
}

// New builds a Loop. logger may be nil to use slog.Default().
func New(backend *BackendClient, f *HTTPFetcher, extractor *extract.Extractor, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{backend: backend, fetcher: f, extractor: extractor, logger: logger, maxAttempts: maxAttempts, sleepFunc: sleep}
}

// Run drives the loop until ctx is canceled or the backend becomes
// unreachable after exhausting backoff (maxAttempts consecutive
// ResourceExhausted responses), in which case it returns an error.
func (l *Loop) Run(ctx context.Context) error {
	backoff := initialBackoff
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := l.backend.GetJob(ctx)
		if errors.Is(err, ErrResourceExhausted) {
			attempts++
			if attempts >= l.maxAttempts {
				return errors.New("workerloop: backend unavailable after exhausting backoff")
			}
			l.logger.Info("get_job exhausted, backing off", "attempt", attempts, "backoff_ms", backoff.Milliseconds())
			metrics.RecordWorkerBackoff(backoff.Seconds())
			if !l.sleepFunc(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		if err != nil {
			return err
		}

		attempts = 0
		backoff = initialBackoff
		l.runJob(ctx, job)
	}
}

// runJob executes one claimed job end to end. Errors are reported to
// the backend via ReturnJobErr and otherwise swallowed (the lease will
// expire and the job becomes reclaimable), per §4.5 step 4.
func (l *Loop) runJob(ctx context.Context, job *Job) {
	base, err := url.Parse(job.URL)
	if err != nil {
		l.logger.Warn("job url does not parse, returning err", "job_id", job.ID, "url", job.URL, "error", err)
		l.reportErr(ctx, job)
		return
	}

	body, contentType, status, err := l.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		l.logger.Info("fetch failed", "job_id", job.ID, "url", job.URL, "error", err)
		l.reportErr(ctx, job)
		return
	}

	result, err := l.extractor.Extract(ctx, body, contentType, status, base)
	if err != nil {
		l.logger.Info("extract failed", "job_id", job.ID, "url", job.URL, "error", err)
		l.reportErr(ctx, job)
		return
	}

	if err := l.backend.ReturnJobOk(ctx, job.ID, job.URL, result); err != nil {
		// Best-effort per §4.5 step 4: the ack's error is logged, not
		// retried. The lease expires and another worker reclaims the job
		// if this really failed.
		l.logger.Warn("return_job ok was not acknowledged", "job_id", job.ID, "url", job.URL, "error", err)
	}
}

func (l *Loop) reportErr(ctx context.Context, job *Job) {
	if err := l.backend.ReturnJobErr(ctx, job.ID, job.URL); err != nil {
		l.logger.Warn("return_job err was not acknowledged", "job_id", job.ID, "url", job.URL, "error", err)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * backoffMultiplier)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleep waits for d or ctx cancellation, reporting which happened.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
