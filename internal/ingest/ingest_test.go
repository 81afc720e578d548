package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/model"
	"github.com/siftcrawl/siftcrawl/internal/store"
)

type fakeFrontier struct {
	job           model.Job
	getErr        error
	enqueued      []string
	enqueueErr    error
	completed     []int64
	completeErr   error
}

func (f *fakeFrontier) GetJob(_ context.Context, id int64) (model.Job, error) {
	if f.getErr != nil {
		return model.Job{}, f.getErr
	}
	return f.job, nil
}

func (f *fakeFrontier) EnqueueIfAbsent(_ context.Context, url string) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, url)
	return nil
}

func (f *fakeFrontier) Complete(_ context.Context, id int64, url string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, id)
	return nil
}

type fakeDocuments struct {
	inserted []model.Document
	err      error
}

func (f *fakeDocuments) InsertDocument(_ context.Context, doc *model.Document) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *doc)
	return nil
}

type fakeIndex struct {
	upserts int
	err     error
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, _ any) error {
	f.upserts++
	return f.err
}

func runningJob(id int64, url string) model.Job {
	expiry := time.Now().Add(time.Minute)
	return model.Job{ID: id, URL: url, Status: model.StatusExecuting, Expiry: &expiry}
}

func TestRunHappyPathHTML(t *testing.T) {
	frontier := &fakeFrontier{job: runningJob(1, "https://example.com/")}
	documents := &fakeDocuments{}
	idx := &fakeIndex{}
	tx := &Transaction{frontier: frontier, documents: documents, index: idx}

	title := "Example"
	result := &extract.Result{
		Kind:       extract.KindHTML,
		HTML:       &extract.HTMLBody{Title: &title},
		LinkedURLs: []string{"/about", "https://other.com/x"},
	}

	if err := tx.Run(context.Background(), 1, "https://example.com/", result); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(documents.inserted) != 1 || documents.inserted[0].Title == nil || *documents.inserted[0].Title != title {
		t.Fatalf("inserted = %+v", documents.inserted)
	}
	if idx.upserts != 1 {
		t.Fatalf("upserts = %d, want 1 (no images)", idx.upserts)
	}
	want := []string{"https://example.com/about", "https://other.com/x"}
	if len(frontier.enqueued) != len(want) {
		t.Fatalf("enqueued = %v, want %v", frontier.enqueued, want)
	}
	for i, w := range want {
		if frontier.enqueued[i] != w {
			t.Fatalf("enqueued[%d] = %q, want %q", i, frontier.enqueued[i], w)
		}
	}
	if len(frontier.completed) != 1 || frontier.completed[0] != 1 {
		t.Fatalf("completed = %v", frontier.completed)
	}
}

func TestRunUpsertsImagesIndexSeparately(t *testing.T) {
	frontier := &fakeFrontier{job: runningJob(1, "https://example.com/")}
	documents := &fakeDocuments{}
	idx := &fakeIndex{}
	tx := &Transaction{frontier: frontier, documents: documents, index: idx}

	result := &extract.Result{
		Kind: extract.KindHTML,
		HTML: &extract.HTMLBody{
			Images: []extract.ImageRef{{ImageURL: "https://example.com/a.png"}},
		},
	}

	if err := tx.Run(context.Background(), 1, "https://example.com/", result); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if idx.upserts != 2 {
		t.Fatalf("upserts = %d, want 2 (websites + images)", idx.upserts)
	}
}

func TestRunRejectsMismatchedJobPreconditions(t *testing.T) {
	frontier := &fakeFrontier{job: runningJob(1, "https://example.com/other")} // different url
	tx := &Transaction{frontier: frontier, documents: &fakeDocuments{}, index: &fakeIndex{}}

	err := tx.Run(context.Background(), 1, "https://example.com/", &extract.Result{Kind: extract.KindOpaque})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRunRejectsAlreadyCompletedJob(t *testing.T) {
	job := runningJob(1, "https://example.com/")
	job.Status = model.StatusComplete
	job.Expiry = nil
	frontier := &fakeFrontier{job: job}
	documents := &fakeDocuments{}
	tx := &Transaction{frontier: frontier, documents: documents, index: &fakeIndex{}}

	err := tx.Run(context.Background(), 1, "https://example.com/", &extract.Result{Kind: extract.KindOpaque})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if len(documents.inserted) != 0 {
		t.Fatalf("expected no document insert on a retried/completed job, got %+v", documents.inserted)
	}
}

func TestRunJobNotFound(t *testing.T) {
	frontier := &fakeFrontier{getErr: store.ErrNotFound}
	tx := &Transaction{frontier: frontier, documents: &fakeDocuments{}, index: &fakeIndex{}}

	err := tx.Run(context.Background(), 99, "https://example.com/", &extract.Result{Kind: extract.KindOpaque})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRunDropsInvalidLinkedURLs(t *testing.T) {
	frontier := &fakeFrontier{job: runningJob(1, "https://example.com/")}
	tx := &Transaction{frontier: frontier, documents: &fakeDocuments{}, index: &fakeIndex{}}

	result := &extract.Result{
		Kind:       extract.KindOpaque,
		LinkedURLs: []string{"\x7f", "/ok"},
	}
	if err := tx.Run(context.Background(), 1, "https://example.com/", result); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frontier.enqueued) != 1 || frontier.enqueued[0] != "https://example.com/ok" {
		t.Fatalf("enqueued = %v", frontier.enqueued)
	}
}

func TestRunNonHTMLDoesNotTouchDocumentsOrIndex(t *testing.T) {
	frontier := &fakeFrontier{job: runningJob(1, "https://example.com/pic.png")}
	documents := &fakeDocuments{}
	idx := &fakeIndex{}
	tx := &Transaction{frontier: frontier, documents: documents, index: idx}

	result := &extract.Result{Kind: extract.KindImage, Image: &extract.ImageBody{}}
	if err := tx.Run(context.Background(), 1, "https://example.com/pic.png", result); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(documents.inserted) != 0 || idx.upserts != 0 {
		t.Fatalf("expected no document/index writes for a non-HTML result")
	}
	if len(frontier.completed) != 1 {
		t.Fatalf("expected the job to still complete")
	}
}
