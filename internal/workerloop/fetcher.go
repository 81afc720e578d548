package workerloop

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher performs plain HTTP GET fetches: the worker's main page
// fetch (§4.5 step 2) and the Extractor's manifest/image sub-fetches
// (it satisfies extract.Fetcher).
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher. client may be nil to use
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch performs a GET request for url and reads the full body. It
// satisfies both the worker loop's own page-fetch need and
// extract.Fetcher's signature.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("build request for %q: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("read body of %q: %w", url, err)
	}

	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}
