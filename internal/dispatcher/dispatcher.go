// Package dispatcher exposes the Admin, Crawler, and Search RPC
// surfaces (spec.md §4.5, §6) over HTTP, one JSON POST route per
// method under /v1, mirroring raito's internal/http/router.go
// locals-injection and request-logging middleware shape.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
	"github.com/siftcrawl/siftcrawl/internal/model"
	"github.com/siftcrawl/siftcrawl/internal/ratelimit"
	"github.com/siftcrawl/siftcrawl/internal/searchindex"
	"github.com/siftcrawl/siftcrawl/internal/store"
)

// frontier is the subset of *store.Store the dispatcher's Crawler and
// Admin services need.
type frontier interface {
	Enqueue(ctx context.Context, url string) (model.Job, error)
	ClaimNext(ctx context.Context) (*model.Job, error)
	Fail(ctx context.Context, id int64, url string) error
	ExtendLease(ctx context.Context, id int64, url string) error
	ListIncomplete(ctx context.Context) ([]model.Job, error)
	GetDocumentByURL(ctx context.Context, url string) (model.Document, error)
	RecordQuery(ctx context.Context, text string) error
	CompleteSearch(ctx context.Context, prefix string, limit int) ([]string, error)
}

// ingestor runs the Ingestion Transaction on a successful ReturnJob.
type ingestor interface {
	Run(ctx context.Context, jobID int64, fetchedURL string, result *extract.Result) error
}

// searcher is the searchindex.Client surface the Search service needs.
type searcher interface {
	Search(ctx context.Context, index, query string, page, hitsPerPage uint32) (*searchindex.SearchResponse, error)
}

// Server wires the Frontier Store, Ingestion Transaction, and search
// index client behind a fiber app.
type Server struct {
	app     *fiber.App
	store   frontier
	ingest  ingestor
	index   searcher
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New builds the dispatcher's fiber app and registers its routes.
// limiter may be nil to disable rate limiting entirely.
func New(st *store.Store, ing ingestor, idx *searchindex.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: st, ingest: ing, index: idx, limiter: limiter, logger: logger}
	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying fiber app, for cmd/coordinator to Listen
// on and to mount /metrics alongside.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerMiddleware() {
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		if s.limiter != nil {
			ok, err := s.limiter.Allow(c.Context(), c.IP())
			if err != nil {
				s.logger.Warn("rate limiter error, failing open", "error", err)
			} else if !ok {
				return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{Code: "RESOURCE_EXHAUSTED", Error: "rate limit exceeded"})
			}
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Seconds())
		s.logger.Info("request",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		)
		return err
	})
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealthz)

	v1 := s.app.Group("/v1")
	v1.Post("/admin/add-url", s.handleAddURLToQueue)
	v1.Post("/admin/urls", s.handleGetAllURLsInQueue)

	v1.Post("/crawler/get-job", s.handleGetJob)
	v1.Post("/crawler/keep-alive", s.handleKeepAliveJob)
	v1.Post("/crawler/return-job", s.handleReturnJob)

	v1.Post("/search/web", s.handleSearchWeb)
	v1.Post("/search/image", s.handleSearchImage)
	v1.Post("/search/complete", s.handleCompleteSearch)
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// errorResponse is the JSON body returned for every non-2xx response,
// Code matching the RPC status names from spec.md §7.
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func statusForErr(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return fiber.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrDuplicateURL):
		return fiber.StatusConflict, "ALREADY_EXISTS"
	default:
		return fiber.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status, code := statusForErr(err)
	return c.Status(status).JSON(errorResponse{Code: code, Error: err.Error()})
}
