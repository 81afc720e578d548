// Package config builds the three process configurations (coordinator,
// worker, CLI) from command-line flags, per spec.md §6, with
// environment-variable fallback for container deployments. A narrow
// YAML file remains for worker-fleet static configuration, where a flag
// per field would be unwieldy — see WorkerFleetConfig.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CoordinatorConfig configures cmd/coordinator: the Postgres pool, the
// search index client, the optional Redis-backed rate limiter, and the
// dispatcher's listen address.
type CoordinatorConfig struct {
	DatabaseURL       string
	MeilisearchURL    string
	MeilisearchAPIKey string
	RedisURL          string
	HostAddress       string
	Port              int
}

// LoadCoordinator parses args (typically os.Args[1:]) into a
// CoordinatorConfig and validates it.
func LoadCoordinator(args []string) (*CoordinatorConfig, error) {
	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)

	databaseURL := fs.String("database-url", envOr("DATABASE_URL", ""), "Postgres connection string (required)")
	meilisearchURL := fs.String("meilisearch-url", envOr("MEILISEARCH_URL", ""), "base URL of the Meilisearch-compatible search index")
	meilisearchKey := fs.String("meilisearch-api-key", envOr("MEILISEARCH_API_KEY", ""), "API key for the search index, if required")
	redisURL := fs.String("redis-url", envOr("REDIS_URL", ""), "Redis URL backing the rate limiter and claim-next ready hint (optional)")
	hostAddress := fs.String("host-address", envOr("HOST_ADDRESS", "0.0.0.0"), "address the dispatcher HTTP server listens on")
	port := fs.Int("port", envIntOr("PORT", 8080), "port the dispatcher HTTP server listens on")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &CoordinatorConfig{
		DatabaseURL:       *databaseURL,
		MeilisearchURL:    *meilisearchURL,
		MeilisearchAPIKey: *meilisearchKey,
		RedisURL:          *redisURL,
		HostAddress:       *hostAddress,
		Port:              *port,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs basic sanity checks so obviously missing
// configuration fails fast at startup.
func (c *CoordinatorConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("--database-url is required")
	}
	if strings.TrimSpace(c.HostAddress) == "" {
		return errors.New("--host-address must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid --port %d", c.Port)
	}
	return nil
}

// Addr is the address the dispatcher should Listen on.
func (c *CoordinatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.HostAddress, c.Port)
}

// WorkerFleetConfig is the optional static worker-pool shape loaded
// from YAML via --worker-config, kept narrow (pool size and poll
// cadence only) rather than the teacher's sprawling struct-of-structs
// since the worker process itself takes everything else as flags.
type WorkerFleetConfig struct {
	PoolSize       int `yaml:"poolSize"`
	FetchTimeoutMs int `yaml:"fetchTimeoutMs"`
	KeepAliveMs    int `yaml:"keepAliveIntervalMs"`
}

// WorkerConfig configures cmd/worker: where the coordinator is, how
// long an HTTP fetch may take, and the fleet shape.
type WorkerConfig struct {
	BackendURL   string
	FetchTimeout time.Duration
	KeepAlive    time.Duration
	PoolSize     int
}

// LoadWorker parses args into a WorkerConfig. --worker-config, if set,
// is read as YAML and overrides the pool-size/timeout defaults.
func LoadWorker(args []string) (*WorkerConfig, error) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	backendURL := fs.String("backend-url", envOr("BACKEND_URL", "http://localhost:8080"), "coordinator base URL")
	fetchTimeoutMs := fs.Int("fetch-timeout-ms", 30000, "HTTP fetch timeout per job, in milliseconds")
	keepAliveMs := fs.Int("keepalive-interval-ms", 60000, "how long shutdown waits for in-flight jobs, in milliseconds (the worker loop does not send KeepAliveJob)")
	poolSize := fs.Int("pool-size", 1, "number of concurrent worker loops in this process")
	workerConfigPath := fs.String("worker-config", "", "optional YAML file overriding pool-size/timeouts for a fixed worker fleet")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &WorkerConfig{
		BackendURL:   *backendURL,
		FetchTimeout: time.Duration(*fetchTimeoutMs) * time.Millisecond,
		KeepAlive:    time.Duration(*keepAliveMs) * time.Millisecond,
		PoolSize:     *poolSize,
	}

	if *workerConfigPath != "" {
		f, err := os.Open(*workerConfigPath)
		if err != nil {
			return nil, fmt.Errorf("open worker config %q: %w", *workerConfigPath, err)
		}
		defer f.Close()

		var fleet WorkerFleetConfig
		if err := yaml.NewDecoder(f).Decode(&fleet); err != nil {
			return nil, fmt.Errorf("decode worker config %q: %w", *workerConfigPath, err)
		}
		if fleet.PoolSize > 0 {
			cfg.PoolSize = fleet.PoolSize
		}
		if fleet.FetchTimeoutMs > 0 {
			cfg.FetchTimeout = time.Duration(fleet.FetchTimeoutMs) * time.Millisecond
		}
		if fleet.KeepAliveMs > 0 {
			cfg.KeepAlive = time.Duration(fleet.KeepAliveMs) * time.Millisecond
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks WorkerConfig for obviously broken values.
func (c *WorkerConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		return errors.New("--backend-url must not be empty")
	}
	if c.PoolSize <= 0 {
		return errors.New("--pool-size must be positive")
	}
	return nil
}

// CLIConfig configures cmd/siftctl.
type CLIConfig struct {
	BackendURL string
}

// LoadCLI parses args into a CLIConfig, expecting --backend-url (if
// given) before the subcommand and its own arguments — e.g.
// `siftctl --backend-url http://host:8080 add-url https://example.com/`.
// It returns the flag set's remaining positional arguments (the
// subcommand and whatever follows it) alongside the config.
func LoadCLI(args []string) (*CLIConfig, []string, error) {
	fs := flag.NewFlagSet("siftctl", flag.ContinueOnError)
	backendURL := fs.String("backend-url", envOr("BACKEND_URL", "http://localhost:8080"), "coordinator base URL")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(*backendURL) == "" {
		return nil, nil, errors.New("--backend-url must not be empty")
	}
	return &CLIConfig{BackendURL: *backendURL}, fs.Args(), nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
