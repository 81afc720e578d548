// Package ratelimit implements a best-effort per-IP fixed-window rate
// limiter backed by Redis, guarding the dispatcher's public HTTP
// surface. It is ambient infrastructure (spec.md §1 excludes per-host
// crawl politeness, but says nothing about protecting the coordinator
// itself), grounded on raito's rateLimitMiddleware.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces limit requests per minute per bucket (typically a
// client IP). A nil *redis.Client makes every call a no-op Allow —
// callers construct a Limiter unconditionally and it degrades
// gracefully when Redis isn't configured.
type Limiter struct {
	rdb   *redis.Client
	limit int
}

// New builds a Limiter. rdb may be nil; limit <= 0 disables limiting.
func New(rdb *redis.Client, limit int) *Limiter {
	return &Limiter{rdb: rdb, limit: limit}
}

// Allow reports whether bucket may proceed, incrementing its counter
// for the current minute window. A Redis error fails open (allows the
// request) rather than taking the coordinator down over a cache outage.
func (l *Limiter) Allow(ctx context.Context, bucket string) (bool, error) {
	if l.rdb == nil || l.limit <= 0 || bucket == "" {
		return true, nil
	}

	window := time.Now().UTC().Format("200601021504")
	key := fmt.Sprintf("siftcrawl:rl:%s:%s", bucket, window)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		_ = l.rdb.Expire(ctx, key, time.Minute).Err()
	}
	return count <= int64(l.limit), nil
}
