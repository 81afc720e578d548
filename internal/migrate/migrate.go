// Package migrate applies siftcrawl's goose migrations (db/migrations)
// at coordinator startup.
package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// migrationsDir holds the goose SQL migrations for the jobs,
// documents, images, and search_history tables (spec.md §3).
const migrationsDir = "db/migrations"

// dialReadyTimeout bounds how long Run waits for Postgres to start
// accepting connections before giving up. dialPollInterval is how
// often it retries within that window.
const (
	dialReadyTimeout = 30 * time.Second
	dialPollInterval = 500 * time.Millisecond
)

// Run applies all pending migrations in migrationsDir using goose. It
// opens and closes its own DB handle so it is independent of the
// coordinator's pooled store connection. logger may be nil, in which
// case the retry and ready log lines go to slog.Default().
func Run(dsn string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// docker-compose's postgres container can take a few seconds to
	// start accepting connections; retry the dial rather than failing
	// the coordinator's very first startup attempt.
	deadline := time.Now().Add(dialReadyTimeout)
	attempt := 0
	for {
		if err := db.Ping(); err == nil {
			break
		}
		attempt++
		if time.Now().After(deadline) {
			if err := db.Ping(); err != nil {
				return fmt.Errorf("database not ready after %s: %w", dialReadyTimeout, err)
			}
			break
		}
		logger.Info("database not ready, retrying", "attempt", attempt)
		time.Sleep(dialPollInterval)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations from %s: %w", migrationsDir, err)
	}

	logger.Info("migrations applied", "dir", migrationsDir)
	return nil
}
