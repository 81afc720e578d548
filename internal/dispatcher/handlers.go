package dispatcher

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/ingest"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
	"github.com/siftcrawl/siftcrawl/internal/searchindex"
)

// --- Admin ---

type addURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleAddURLToQueue(c *fiber.Ctx) error {
	var req addURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "malformed request body"})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "url is required"})
	}

	// AddUrlToQueue is the admin path: a duplicate URL is a genuine
	// error here (unlike enqueue_if_absent, which swallows it), per
	// spec.md §4.3.
	if _, err := s.store.Enqueue(c.Context(), req.URL); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{})
}

type jobView struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (s *Server) handleGetAllURLsInQueue(c *fiber.Ctx) error {
	jobs, err := s.store.ListIncomplete(c.Context())
	if err != nil {
		return s.fail(c, err)
	}

	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{ID: j.ID, URL: j.URL, Status: string(j.Status)})
	}
	return c.JSON(fiber.Map{"urls": views})
}

// --- Crawler ---

func (s *Server) handleGetJob(c *fiber.Ctx) error {
	job, err := s.store.ClaimNext(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	if job == nil {
		metrics.RecordJobClaimExhausted()
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Code: "RESOURCE_EXHAUSTED", Error: "no job available"})
	}
	metrics.RecordJobClaimed()
	return c.JSON(jobView{ID: job.ID, URL: job.URL, Status: string(job.Status)})
}

type jobRefRequest struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

func (s *Server) handleKeepAliveJob(c *fiber.Ctx) error {
	var req jobRefRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "malformed request body"})
	}
	if err := s.store.ExtendLease(c.Context(), req.ID, req.URL); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{})
}

// returnJobRequest mirrors spec.md §6's OkPayload | ErrPayload oneof.
// Ok nil and Err nil (neither populated) is a protocol error per the
// recorded open-question decision, distinguishable from a legitimate
// Err{}.
type returnJobRequest struct {
	ID  int64           `json:"id"`
	URL string          `json:"url"`
	Ok  *extract.Result `json:"ok,omitempty"`
	Err *struct{}       `json:"err,omitempty"`
}

func (s *Server) handleReturnJob(c *fiber.Ctx) error {
	var req returnJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "malformed request body"})
	}

	switch {
	case req.Ok != nil:
		if err := s.ingest.Run(c.Context(), req.ID, req.URL, req.Ok); err != nil {
			metrics.RecordJobOutcome("err")
			if errors.Is(err, ingest.ErrInvalidArgument) {
				return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: err.Error()})
			}
			return s.fail(c, err)
		}
		metrics.RecordJobOutcome("ok")
		return c.JSON(fiber.Map{})

	case req.Err != nil:
		if err := s.store.Fail(c.Context(), req.ID, req.URL); err != nil {
			metrics.RecordJobOutcome("err")
			return s.fail(c, err)
		}
		metrics.RecordJobOutcome("err")
		return c.JSON(fiber.Map{})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "return_job requires either ok or err"})
	}
}

// --- Search ---

type searchRequest struct {
	Query string `json:"query"`
	Page  uint32 `json:"page"`
}

// searchResult is populated entirely from the canonical store row the
// hit joins against (spec.md §4.5: SearchWeb/SearchImage "joins
// results with the canonical store"), not from the search index's own
// fields — the index only ever supplies which URLs matched.
type searchResult struct {
	URL             string   `json:"url"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	IconURL         string   `json:"icon_url,omitempty"`
	SiteName        string   `json:"site_name,omitempty"`
	SiteShortName   string   `json:"site_short_name,omitempty"`
	SiteDescription string   `json:"site_description,omitempty"`
	SiteCategories  []string `json:"site_categories,omitempty"`
	Width           *int32   `json:"width,omitempty"`
	Height          *int32   `json:"height,omitempty"`
	AltText         string   `json:"alt_text,omitempty"`
}

const hitsPerPage = 20

func (s *Server) search(c *fiber.Ctx, index string) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "malformed request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "query is required"})
	}

	resp, err := s.index.Search(c.Context(), index, req.Query, req.Page, hitsPerPage)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.store.RecordQuery(c.Context(), req.Query); err != nil {
		return s.fail(c, err)
	}

	results := make([]searchResult, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		r, ok := s.joinHit(c.Context(), index, hit)
		if !ok {
			// The index and the canonical store are eventually
			// consistent (internal/searchindex's own doc comment); a hit
			// with no matching row means it was re-crawled or dropped
			// since the index was last upserted. Drop the hit rather
			// than return index-only data the store no longer backs.
			continue
		}
		results = append(results, r)
	}
	return c.JSON(fiber.Map{"results": results})
}

// joinHit resolves one search hit against the canonical store. For a
// website hit, hit.URL is itself the document's URL. For an image
// hit, hit.URL is the image's own URL and hit.Fields["source"] is the
// page URL it was found on (internal/searchindex.ImageDocument.Source)
// — the document is looked up by that, then the specific image is
// matched back out of its Images by URL for width/height/alt text.
func (s *Server) joinHit(ctx context.Context, index string, hit searchindex.Hit) (searchResult, bool) {
	pageURL := hit.URL
	if index == "images" {
		if source, ok := hit.Fields["source"].(string); ok {
			pageURL = source
		}
	}

	doc, err := s.store.GetDocumentByURL(ctx, pageURL)
	if err != nil {
		return searchResult{}, false
	}

	r := searchResult{URL: hit.URL, SiteCategories: doc.SiteCategories}
	if doc.Title != nil {
		r.Title = *doc.Title
	}
	if doc.Description != nil {
		r.Description = *doc.Description
	}
	if doc.IconURL != nil {
		r.IconURL = *doc.IconURL
	}
	if doc.SiteName != nil {
		r.SiteName = *doc.SiteName
	}
	if doc.SiteShortName != nil {
		r.SiteShortName = *doc.SiteShortName
	}
	if doc.SiteDescription != nil {
		r.SiteDescription = *doc.SiteDescription
	}

	if index == "images" {
		for _, img := range doc.Images {
			if img.URL != hit.URL {
				continue
			}
			r.Width = img.Width
			r.Height = img.Height
			if img.AltText != nil {
				r.AltText = *img.AltText
			}
			break
		}
	}
	return r, true
}

func (s *Server) handleSearchWeb(c *fiber.Ctx) error {
	return s.search(c, "websites")
}

func (s *Server) handleSearchImage(c *fiber.Ctx) error {
	return s.search(c, "images")
}

type completeSearchRequest struct {
	Current string `json:"current"`
}

func (s *Server) handleCompleteSearch(c *fiber.Ctx) error {
	var req completeSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_ARGUMENT", Error: "malformed request body"})
	}

	possibilities, err := s.store.CompleteSearch(c.Context(), req.Current, 10)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"possibilities": possibilities})
}
