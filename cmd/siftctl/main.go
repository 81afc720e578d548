// Command siftctl is the operational admin CLI: add-url and get-all-url
// against the coordinator's Admin RPC surface (spec.md §6). --backend-url
// precedes the subcommand: `siftctl --backend-url http://host:8080 add-url <URL>`.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/config"
)

func main() {
	cfg, rest, err := config.LoadCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "siftctl:", err)
		os.Exit(1)
	}
	if len(rest) == 0 {
		usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	ctx := context.Background()

	switch command, args := rest[0], rest[1:]; command {
	case "add-url":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "siftctl: add-url requires a URL argument")
			os.Exit(2)
		}
		if err := addURL(ctx, client, cfg.BackendURL, args[0]); err != nil {
			fmt.Fprintln(os.Stderr, "siftctl:", err)
			os.Exit(1)
		}
		fmt.Println("queued:", args[0])

	case "get-all-url":
		urls, err := getAllURLs(ctx, client, cfg.BackendURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "siftctl:", err)
			os.Exit(1)
		}
		for _, u := range urls {
			fmt.Printf("%d\t%s\t%s\n", u.ID, u.Status, u.URL)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: siftctl [--backend-url http://localhost:8080] <add-url <URL>|get-all-url>")
}

type jobView struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func addURL(ctx context.Context, client *http.Client, backendURL, url string) error {
	body, _ := json.Marshal(map[string]string{"url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backendURL+"/v1/admin/add-url", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add-url failed: %s", readBody(resp.Body))
	}
	return nil
}

func getAllURLs(ctx context.Context, client *http.Client, backendURL string) ([]jobView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backendURL+"/v1/admin/urls", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get-all-url failed: %s", readBody(resp.Body))
	}

	var body struct {
		URLs []jobView `json:"urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.URLs, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(r)
	return string(b)
}
