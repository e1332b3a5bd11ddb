// Package ratelimit paces outbound requests per host with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/eures-crawler/internal/metrics"
)

// Config sets the pace applied to each host. A non-positive RPS disables pacing.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter hands out one token bucket per host. A nil Limiter never waits.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{limit: rate.Inf, burst: max(cfg.Burst, 1), buckets: map[string]*rate.Limiter{}}
	if cfg.RPS > 0 {
		l.limit = rate.Limit(cfg.RPS)
	}
	return l
}

// Wait blocks until the host of rawURL may be called again or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.limit == rate.Inf {
		return nil
	}
	start := time.Now()
	if err := l.bucket(hostOf(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Sub-millisecond waits are immediate grants.
	if waited := time.Since(start); waited >= time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
