// Package searchindex is a thin client for the external, eventually-
// consistent search index described by spec.md §1 and §4.4: a
// Meilisearch-compatible document store that the Ingestion Transaction
// upserts HTML documents and images into, and that the Search service
// queries on the read path.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebsitesIndex and ImagesIndex are the two index names the Ingestion
// Transaction and Search service operate against.
const (
	WebsitesIndex = "websites"
	ImagesIndex   = "images"
)

// WebsiteDocument is the shape upserted into WebsitesIndex for every
// crawled HTML page.
type WebsiteDocument struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	TextFields  []string `json:"text_fields,omitempty"`
	Sections    []string `json:"sections,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ImageDocument is the shape upserted into ImagesIndex for every image
// discovered on a crawled HTML page.
type ImageDocument struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	// Source is the URL of the page the image was discovered on, so a
	// search hit can be joined back against the canonical store the
	// same way a website hit is: by page URL.
	Source  string `json:"source"`
	AltText string `json:"alt_text,omitempty"`
}

// Hit is one result row returned from a Search call. Fields beyond ID
// and URL are left as a raw map so callers can pull whatever the
// underlying index schema happens to expose without this package
// needing to track it field-by-field.
type Hit struct {
	ID     string
	URL    string
	Fields map[string]any
}

// SearchResponse is the parsed result of a Search call.
type SearchResponse struct {
	Hits           []Hit
	EstimatedTotal int64
	Page           uint32
}

// Client talks to a Meilisearch-compatible HTTP API. It is intentionally
// narrow — just enough surface for upsert and search — rather than a
// full SDK, since nothing in the retrieval pack ships a Meilisearch
// client library.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

// NewClient builds a Client. baseURL is the Meilisearch (or compatible)
// endpoint root, e.g. "http://localhost:7700". apiKey may be empty for
// an unauthenticated instance.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Upsert indexes or replaces documents in the named index. docs must be
// JSON-marshalable (typically []WebsiteDocument or []ImageDocument).
// Meilisearch's add-documents endpoint is an upsert by primary key, so
// a repeated ID simply replaces the prior document — matching the
// Ingestion Transaction's need to be safely retried (I6).
func (c *Client) Upsert(ctx context.Context, index string, docs any) error {
	body, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/documents", c.baseURL, url.PathEscape(index))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upsert into %s failed with status %d", index, resp.StatusCode)
	}
	return nil
}

// Search queries the named index. page is zero-based.
func (c *Client) Search(ctx context.Context, index, query string, page, hitsPerPage uint32) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if hitsPerPage == 0 {
		hitsPerPage = 20
	}

	payload := struct {
		Query       string `json:"q"`
		Page        int    `json:"page"`
		HitsPerPage int    `json:"hitsPerPage"`
	}{
		Query:       query,
		Page:        int(page) + 1, // Meilisearch pages are 1-based
		HitsPerPage: int(hitsPerPage),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/search", c.baseURL, url.PathEscape(index))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s failed with status %d", index, resp.StatusCode)
	}

	var raw struct {
		Hits           []map[string]any `json:"hits"`
		EstimatedTotal int64            `json:"estimatedTotalHits"`
		Page           int              `json:"page"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &SearchResponse{
		EstimatedTotal: raw.EstimatedTotal,
		Page:           page,
	}
	for _, h := range raw.Hits {
		hit := Hit{Fields: h}
		if id, ok := h["id"].(string); ok {
			hit.ID = id
		}
		if u, ok := h["url"].(string); ok {
			hit.URL = u
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// healthURL is the index's health endpoint, probed by Ping.
func (c *Client) healthURL() string {
	return c.baseURL + "/health"
}

// Ping does a single best-effort readiness check against the index's
// health endpoint, with no retry. Ingestion does not depend on it (the
// index is allowed to lag per I6), and cmd/coordinator does not call it.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL(), nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search index health check failed with status %d", resp.StatusCode)
	}
	return nil
}
