package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/siftcrawl/siftcrawl/internal/model"
)

// openTestStore connects to a real Postgres instance and applies
// migrations, skipping the test when SIFTCRAWL_TEST_DATABASE_URL isn't
// set (these are integration tests, not unit tests: the Frontier
// Store's optimistic-concurrency and precondition behavior can't be
// faithfully exercised against a mock).
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SIFTCRAWL_TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("set SIFTCRAWL_TEST_DATABASE_URL to run store integration tests")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("set dialect: %v", err)
	}
	if err := goose.Up(db, "../../db/migrations"); err != nil {
		t.Fatalf("goose up: %v", err)
	}

	for _, table := range []string{"images", "documents", "search_history", "jobs"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	return New(db, nil)
}

func TestEnqueueAndClaimNext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != model.StatusQueued {
		t.Fatalf("Status = %v, want queued", job.Status)
	}

	claimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job")
	}
	if claimed.ID != job.ID || claimed.Status != model.StatusExecuting {
		t.Fatalf("claimed = %+v", claimed)
	}
	if claimed.Expiry == nil {
		t.Fatal("expected a non-nil expiry after claim")
	}

	// Nothing left to claim.
	second, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("second ClaimNext: %v", err)
	}
	if second != nil {
		t.Fatalf("expected empty claim, got %+v", second)
	}
}

func TestEnqueueDuplicateURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, "https://example.com/dup"); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if _, err := s.Enqueue(ctx, "https://example.com/dup"); err != ErrDuplicateURL {
		t.Fatalf("second Enqueue err = %v, want ErrDuplicateURL", err)
	}
}

func TestEnqueueIfAbsentSwallowsDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, "https://example.com/absent"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.EnqueueIfAbsent(ctx, "https://example.com/absent"); err != nil {
		t.Fatalf("EnqueueIfAbsent: %v", err)
	}
}

func TestCompletePreconditions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "https://example.com/complete-me")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Completing a Queued (not yet Executing) job fails its precondition.
	if err := s.Complete(ctx, job.ID, job.URL); err != ErrInvalidArgument {
		t.Fatalf("Complete on queued job err = %v, want ErrInvalidArgument", err)
	}

	claimed, err := s.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v, %+v", err, claimed)
	}

	if err := s.Complete(ctx, claimed.ID, claimed.URL); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := s.GetJob(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.StatusComplete || got.Expiry != nil {
		t.Fatalf("got = %+v, want complete with nil expiry", got)
	}

	// A second Complete (ack retried after the reply was lost) must not
	// succeed again — the job is no longer Executing.
	if err := s.Complete(ctx, claimed.ID, claimed.URL); err != ErrInvalidArgument {
		t.Fatalf("second Complete err = %v, want ErrInvalidArgument", err)
	}
}

func TestFailRequeuesUnconditionally(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "https://example.com/fail-me")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := s.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v, %+v", err, claimed)
	}

	if err := s.Fail(ctx, claimed.ID, claimed.URL); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.StatusQueued || got.Expiry != nil {
		t.Fatalf("got = %+v, want queued with nil expiry", got)
	}
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "https://example.com/expired")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, expiry = now() - interval '1 minute', last_updated = now()
		WHERE id = $2
	`, model.StatusExecuting, job.ID); err != nil {
		t.Fatalf("force-expire job: %v", err)
	}

	reclaimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != job.ID {
		t.Fatalf("expected to reclaim expired job, got %+v", reclaimed)
	}
}

func TestInsertDocumentWithImages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	title := "Example"
	alt := "a pic"
	width := int32(10)
	doc := &model.Document{
		URL:        "https://example.com/",
		Title:      &title,
		TextFields: []string{"hello"},
		Manifest:   json.RawMessage(`{"name":"Example App","categories":["news"]}`),
		Images: []model.Image{
			{URL: "https://example.com/pic.png", AltText: &alt, Width: &width},
		},
	}

	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	got, err := s.GetDocumentByURL(ctx, doc.URL)
	if err != nil {
		t.Fatalf("GetDocumentByURL: %v", err)
	}
	if got.Title == nil || *got.Title != title {
		t.Fatalf("Title = %v", got.Title)
	}
	if len(got.TextFields) != 1 || got.TextFields[0] != "hello" {
		t.Fatalf("TextFields = %v", got.TextFields)
	}
	if got.Manifest == nil || string(got.Manifest) != string(doc.Manifest) {
		t.Fatalf("Manifest = %s, want %s", got.Manifest, doc.Manifest)
	}
	if len(got.Images) != 1 || got.Images[0].URL != doc.Images[0].URL {
		t.Fatalf("Images = %+v", got.Images)
	}
}

func TestRecordQueryIncrementsCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordQuery(ctx, "golang crawler"); err != nil {
		t.Fatalf("RecordQuery: %v", err)
	}
	if err := s.RecordQuery(ctx, "golang crawler"); err != nil {
		t.Fatalf("RecordQuery: %v", err)
	}

	hits, err := s.CompleteSearch(ctx, "golang", 10)
	if err != nil {
		t.Fatalf("CompleteSearch: %v", err)
	}
	if len(hits) != 1 || hits[0] != "golang crawler" {
		t.Fatalf("hits = %v", hits)
	}
}
