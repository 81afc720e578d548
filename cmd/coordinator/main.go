// Command coordinator runs the backend: migrations, the Frontier
// Store and Ingestion Transaction over Postgres, the search index
// client, and the dispatcher's HTTP surface (spec.md §4.5, §6).
package main

import (
	"database/sql"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/siftcrawl/siftcrawl/internal/config"
	"github.com/siftcrawl/siftcrawl/internal/dispatcher"
	"github.com/siftcrawl/siftcrawl/internal/ingest"
	"github.com/siftcrawl/siftcrawl/internal/migrate"
	"github.com/siftcrawl/siftcrawl/internal/ratelimit"
	"github.com/siftcrawl/siftcrawl/internal/searchindex"
	"github.com/siftcrawl/siftcrawl/internal/store"

	fiberadaptor "github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ratelimitPerMinute = 600
	searchIndexTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadCoordinator(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := migrate.Run(cfg.DatabaseURL, logger); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// A single Redis client, when configured, backs both the rate
	// limiter and the Frontier Store's claim-next ready hint
	// (SPEC_FULL.md §3) — one optional dependency, two ambient uses.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		rdb = redis.NewClient(opt)
	}

	st := store.New(db, rdb)
	idx := searchindex.NewClient(cfg.MeilisearchURL, cfg.MeilisearchAPIKey, searchIndexTimeout)
	tx := ingest.New(st, idx)

	var limiter *ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.New(rdb, ratelimitPerMinute)
	} else {
		limiter = ratelimit.New(nil, 0)
	}

	srv := dispatcher.New(st, tx, idx, limiter, logger)
	srv.App().Get("/metrics", fiberadaptor.HTTPHandler(promhttp.Handler()))

	logger.Info("coordinator listening", "addr", cfg.Addr())
	if err := srv.App().Listen(cfg.Addr()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
