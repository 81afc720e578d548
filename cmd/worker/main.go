// Command worker runs the crawl worker loop (spec.md §4.5): it pulls
// jobs from the coordinator, fetches them over plain HTTP, extracts
// their content, and returns the result. Run N of these independently
// for a worker fleet.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/config"
	"github.com/siftcrawl/siftcrawl/internal/extract"
	"github.com/siftcrawl/siftcrawl/internal/workerloop"
)

func main() {
	cfg, err := config.LoadWorker(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	fetcher := workerloop.NewHTTPFetcher(httpClient)
	backend := workerloop.NewBackendClient(cfg.BackendURL, httpClient)
	extractor := extract.New(nil, fetcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.PoolSize; i++ {
		loop := workerloop.New(backend, fetcher, extractor, logger.With("worker", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker loop exited", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight jobs")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.KeepAlive):
		logger.Warn("worker pool did not shut down cleanly within the keep-alive window")
	}
}
