// Package workerloop implements the worker side of spec.md §4.5: the
// GetJob/fetch/extract/ReturnJob loop with exponential backoff when
// the queue is empty, talking to internal/dispatcher over HTTP.
package workerloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/siftcrawl/siftcrawl/internal/extract"
)

// ErrResourceExhausted signals GetJob found nothing claimable — the
// caller backs off and retries, it is not a fatal loop error.
var ErrResourceExhausted = errors.New("workerloop: resource exhausted")

// ErrInvalidArgument signals the coordinator rejected a call outright
// (malformed job reference); the caller must not retry it.
var ErrInvalidArgument = errors.New("workerloop: invalid argument")

// Job is the claimed unit of work returned by GetJob.
type Job struct {
	ID  int64
	URL string
}

// BackendClient is an HTTP client for the dispatcher's Crawler service.
type BackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient builds a BackendClient against baseURL (the
// coordinator's --host-address:--port, e.g. http://localhost:8080).
func NewBackendClient(baseURL string, httpClient *http.Client) *BackendClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BackendClient{baseURL: baseURL, client: httpClient}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// GetJob claims the next available job, or returns ErrResourceExhausted
// if none is available.
func (c *BackendClient) GetJob(ctx context.Context) (*Job, error) {
	resp, err := c.post(ctx, "/v1/crawler/get-job", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var job Job
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return nil, fmt.Errorf("decode get_job response: %w", err)
		}
		return &job, nil
	case http.StatusServiceUnavailable:
		return nil, ErrResourceExhausted
	default:
		return nil, decodeError(resp)
	}
}

// KeepAlive extends the lease on an in-flight job.
func (c *BackendClient) KeepAlive(ctx context.Context, id int64, url string) error {
	resp, err := c.post(ctx, "/v1/crawler/keep-alive", jobRef{ID: id, URL: url})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// ReturnJobOk reports a successful crawl.
func (c *BackendClient) ReturnJobOk(ctx context.Context, id int64, url string, result *extract.Result) error {
	body := returnJobRequest{ID: id, URL: url, Ok: result}
	return c.returnJob(ctx, body)
}

// ReturnJobErr reports a failed crawl (fetch or extraction error).
func (c *BackendClient) ReturnJobErr(ctx context.Context, id int64, url string) error {
	body := returnJobRequest{ID: id, URL: url, Err: &struct{}{}}
	return c.returnJob(ctx, body)
}

func (c *BackendClient) returnJob(ctx context.Context, body returnJobRequest) error {
	resp, err := c.post(ctx, "/v1/crawler/return-job", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

type jobRef struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

type returnJobRequest struct {
	ID  int64           `json:"id"`
	URL string          `json:"url"`
	Ok  *extract.Result `json:"ok,omitempty"`
	Err *struct{}       `json:"err,omitempty"`
}

func (c *BackendClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code == "INVALID_ARGUMENT" {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, body.Error)
	}
	if body.Error == "" {
		return fmt.Errorf("dispatcher returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("dispatcher: %s (%s)", body.Error, body.Code)
}
