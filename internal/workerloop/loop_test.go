package workerloop

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/extract"
)

type fakeBackend struct {
	jobs      []*Job
	jobErrs   []error
	callIndex int
	okCalls   []int64
	errCalls  []int64
}

func (f *fakeBackend) GetJob(_ context.Context) (*Job, error) {
	i := f.callIndex
	f.callIndex++
	if i >= len(f.jobs) {
		return nil, ErrResourceExhausted
	}
	return f.jobs[i], f.jobErrs[i]
}

func (f *fakeBackend) ReturnJobOk(_ context.Context, id int64, _ string, _ *extract.Result) error {
	f.okCalls = append(f.okCalls, id)
	return nil
}

func (f *fakeBackend) ReturnJobErr(_ context.Context, id int64, _ string) error {
	f.errCalls = append(f.errCalls, id)
	return nil
}

type fakeFetcher struct {
	body        []byte
	contentType string
	status      int
	err         error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, string, int, error) {
	return f.body, f.contentType, f.status, f.err
}

func newTestLoop(backend *fakeBackend, fetch *fakeFetcher) *Loop {
	return &Loop{
		backend:     backend,
		fetcher:     fetch,
		extractor:   extract.New(nil, nil),
		logger:      slog.Default(),
		maxAttempts: maxAttempts,
		sleepFunc:   func(context.Context, time.Duration) bool { return true },
	}
}

func TestRunJobHappyPathReturnsOk(t *testing.T) {
	backend := &fakeBackend{}
	fetch := &fakeFetcher{body: []byte("<html><title>Example</title></html>"), contentType: "text/html", status: 200}
	l := newTestLoop(backend, fetch)

	l.runJob(context.Background(), &Job{ID: 1, URL: "https://example.com/"})

	if len(backend.okCalls) != 1 || backend.okCalls[0] != 1 {
		t.Fatalf("okCalls = %v", backend.okCalls)
	}
	if len(backend.errCalls) != 0 {
		t.Fatalf("errCalls = %v, want none", backend.errCalls)
	}
}

func TestRunJobFetchFailureReportsErr(t *testing.T) {
	backend := &fakeBackend{}
	fetch := &fakeFetcher{err: errors.New("connection refused")}
	l := newTestLoop(backend, fetch)

	l.runJob(context.Background(), &Job{ID: 2, URL: "https://example.com/"})

	if len(backend.errCalls) != 1 || backend.errCalls[0] != 2 {
		t.Fatalf("errCalls = %v", backend.errCalls)
	}
	if len(backend.okCalls) != 0 {
		t.Fatalf("okCalls = %v, want none", backend.okCalls)
	}
}

func TestRunJobMalformedURLReportsErr(t *testing.T) {
	backend := &fakeBackend{}
	fetch := &fakeFetcher{}
	l := newTestLoop(backend, fetch)

	l.runJob(context.Background(), &Job{ID: 3, URL: "ht!tp://exa mple.com/\x7f"})

	if len(backend.errCalls) != 1 || backend.errCalls[0] != 3 {
		t.Fatalf("errCalls = %v", backend.errCalls)
	}
}

func TestRunExhaustsBackoffAndReturnsError(t *testing.T) {
	backend := &fakeBackend{} // every GetJob call returns ErrResourceExhausted
	fetch := &fakeFetcher{}
	l := newTestLoop(backend, fetch)

	err := l.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error after exhausting backoff")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	backend := &fakeBackend{}
	fetch := &fakeFetcher{}
	l := newTestLoop(backend, fetch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	cur := maxBackoff
	if got := nextBackoff(cur); got != maxBackoff {
		t.Fatalf("nextBackoff(max) = %v, want %v", got, maxBackoff)
	}
}

func TestNextBackoffGrows(t *testing.T) {
	got := nextBackoff(initialBackoff)
	if got <= initialBackoff {
		t.Fatalf("nextBackoff(initial) = %v, want > %v", got, initialBackoff)
	}
}
