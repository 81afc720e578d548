// Package ingest implements the Ingestion Transaction (spec.md §4.4):
// the server-side sequence triggered by a worker's successful
// ReturnJob that commits a crawled page's content and discovers its
// outbound links.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/model"
	"github.com/siftcrawl/siftcrawl/internal/normalize"
	"github.com/siftcrawl/siftcrawl/internal/searchindex"
	"github.com/siftcrawl/siftcrawl/internal/store"
)

// ErrInvalidArgument is returned when the job lookup fails its
// preconditions (id/url mismatch, not Executing, lease expired) — the
// RPC layer maps this to the spec's InvalidArgument status.
var ErrInvalidArgument = errors.New("ingest: invalid argument")

// frontierStore and documentStore are the Store methods the
// Transaction depends on, narrowed for testability.
type frontierStore interface {
	GetJob(ctx context.Context, id int64) (model.Job, error)
	EnqueueIfAbsent(ctx context.Context, url string) error
	Complete(ctx context.Context, id int64, url string) error
}

type documentStore interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
}

// searchUpserter is the searchindex.Client surface the Transaction
// needs; narrowed so tests can substitute a fake.
type searchUpserter interface {
	Upsert(ctx context.Context, index string, docs any) error
}

// Transaction runs the Ingestion Transaction against a Store and search
// index client.
type Transaction struct {
	frontier  frontierStore
	documents documentStore
	index     searchUpserter
}

// New builds a Transaction. st provides both the frontierStore and
// documentStore surfaces (internal/store.Store satisfies both); idx is
// the search index client.
func New(st *store.Store, idx *searchindex.Client) *Transaction {
	return &Transaction{frontier: st, documents: st, index: idx}
}

// Run executes the Ingestion Transaction for a successful worker
// return: job id, the url the worker fetched, and the Extractor's
// Result. It is a no-op on the search index and document store when
// result.Kind is not HTML (a successful non-HTML fetch still completes
// the job and enqueues any links the fetch's own container carried, but
// the Extractor only ever populates LinkedURLs for HTML — see
// internal/extract).
//
// The job's Complete transition is made the transaction's last durable
// act (per spec.md §4.4's ordering rationale): a retried ReturnJob for
// an already-completed job is rejected in step 2, before any document
// or index write repeats.
func (t *Transaction) Run(ctx context.Context, jobID int64, fetchedURL string, result *extract.Result) error {
	base, err := url.Parse(fetchedURL)
	if err != nil {
		return fmt.Errorf("%w: fetched url %q does not parse: %v", ErrInvalidArgument, fetchedURL, err)
	}

	job, err := t.frontier.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: job %d not found", ErrInvalidArgument, jobID)
	}
	if err != nil {
		return fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job.URL != fetchedURL || job.Status != model.StatusExecuting || job.Expiry == nil || !job.Expiry.After(time.Now()) {
		return fmt.Errorf("%w: job %d preconditions not met", ErrInvalidArgument, jobID)
	}

	for _, raw := range result.LinkedURLs {
		normalized, err := normalize.URL(raw, base)
		if err != nil {
			continue // drop-if-invalid, per §4.4 step 4
		}
		if err := t.frontier.EnqueueIfAbsent(ctx, normalized); err != nil {
			return fmt.Errorf("enqueue_if_absent %q: %w", normalized, err)
		}
	}

	if result.Kind == extract.KindHTML && result.HTML != nil {
		doc := documentFromHTML(fetchedURL, result.HTML)
		if err := t.documents.InsertDocument(ctx, &doc); err != nil {
			return fmt.Errorf("insert document %q: %w", fetchedURL, err)
		}
		if err := t.upsertWebsite(ctx, &doc); err != nil {
			return fmt.Errorf("upsert search index for %q: %w", fetchedURL, err)
		}
	}

	if err := t.frontier.Complete(ctx, jobID, fetchedURL); err != nil {
		if errors.Is(err, store.ErrInvalidArgument) {
			return fmt.Errorf("%w: job %d no longer completable", ErrInvalidArgument, jobID)
		}
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return nil
}

func (t *Transaction) upsertWebsite(ctx context.Context, doc *model.Document) error {
	wd := searchindex.WebsiteDocument{
		ID:         doc.ID.String(),
		URL:        doc.URL,
		TextFields: doc.TextFields,
		Sections:   doc.Sections,
		Keywords:   doc.Keywords,
	}
	if doc.Title != nil {
		wd.Title = *doc.Title
	}
	if doc.Description != nil {
		wd.Description = *doc.Description
	}
	if err := t.index.Upsert(ctx, searchindex.WebsitesIndex, []searchindex.WebsiteDocument{wd}); err != nil {
		return err
	}

	if len(doc.Images) == 0 {
		return nil
	}
	imgs := make([]searchindex.ImageDocument, 0, len(doc.Images))
	for _, img := range doc.Images {
		id := searchindex.ImageDocument{
			ID:     img.ID.String(),
			URL:    img.URL,
			Source: doc.URL,
		}
		if img.AltText != nil {
			id.AltText = *img.AltText
		}
		imgs = append(imgs, id)
	}
	return t.index.Upsert(ctx, searchindex.ImagesIndex, imgs)
}

func documentFromHTML(fetchedURL string, h *extract.HTMLBody) model.Document {
	doc := model.Document{
		URL:            fetchedURL,
		Title:          h.Title,
		Description:    h.Description,
		IconURL:        h.IconURL,
		TextFields:     h.TextFields,
		Sections:       h.Sections,
		Keywords:       h.Keywords,
		SiteCategories: []string{},
	}

	if h.Manifest != nil {
		doc.SiteName = h.Manifest.Name
		doc.SiteShortName = h.Manifest.ShortName
		doc.SiteDescription = h.Manifest.Description
		doc.SiteCategories = h.Manifest.Categories
		if raw, err := marshalManifest(h.Manifest); err == nil {
			doc.Manifest = raw
		}
	}

	for _, img := range h.Images {
		mi := model.Image{URL: img.ImageURL, AltText: img.AltText}
		if img.Size != nil {
			w := int32(img.Size.Width)
			ht := int32(img.Size.Height)
			mi.Width = &w
			mi.Height = &ht
		}
		doc.Images = append(doc.Images, mi)
	}

	return doc
}

func marshalManifest(m *extract.ManifestBody) (json.RawMessage, error) {
	return json.Marshal(m)
}
