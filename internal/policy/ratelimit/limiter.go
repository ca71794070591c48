// Package ratelimit paces outbound fetches with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Observer receives the time a request waited for its token.
type Observer interface {
	ObserveRateLimitDelay(host string, d time.Duration)
}

// Config holds rate limiter configuration. RPS <= 0 disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	observer Observer
}

// New creates a Limiter. observer may be nil.
func New(cfg Config, observer Observer) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		observer: observer,
	}
}

// Wait blocks until a token is available for the host of rawURL or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not interesting.
	if d := time.Since(start); d > time.Millisecond && l.observer != nil {
		l.observer.ObserveRateLimitDelay(host, d)
	}
	return nil
}

// Fetcher delays each Fetch until the limiter grants a token.
type Fetcher struct {
	next    catalog.Fetcher
	limiter *Limiter
}

// Wrap returns a catalog.Fetcher that rate limits next.
func Wrap(next catalog.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch waits for a token and then delegates to the wrapped fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, rawURL)
}
