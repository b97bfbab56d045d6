package rerank

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultBackoff applies when a 429 carries no usable Retry-After.
const defaultBackoff = 30 * time.Second

// ErrBackoff is returned while a server-requested backoff is in effect.
var ErrBackoff = errors.New("rate limited by server")

// RateLimiter throttles scoring requests with a token bucket and honours
// server backoff after a 429 response.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second.
// A non-positive rps disables throttling but keeps 429 backoff.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until the token bucket admits a request. During a backoff set
// by RecordRateLimitError it returns ErrBackoff at once instead of sleeping.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.inBackoff() {
		return ErrBackoff
	}
	return r.limiter.Wait(ctx)
}

func (r *RateLimiter) inBackoff() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().Before(r.retryAt)
}

// RecordRateLimitError sets a backoff period after a 429 response.
func (r *RateLimiter) RecordRateLimitError(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = defaultBackoff
	}
	r.retryAt = time.Now().Add(retryAfter)
}

// Allow reports whether a request can be made immediately.
func (r *RateLimiter) Allow() bool {
	if r.inBackoff() {
		return false
	}
	return r.limiter.Allow()
}
