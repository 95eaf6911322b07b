package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter with an optional hard minimum
// interval between requests. AlgoLab enforces a fixed spacing between order
// API calls, so the interval matters more than the bucket for that endpoint.
// Safe for concurrent use.
type RateLimiter struct {
	mu          sync.Mutex
	tokens      float64
	maxTokens   float64
	refillRate  float64 // tokens per second
	lastRefill  time.Time
	minInterval time.Duration
	lastRequest time.Time
}

// NewRateLimiter creates a limiter allowing bursts of maxBurst and refilling
// at perSecond tokens per second.
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		tokens:     float64(maxBurst),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		lastRefill: now,
		// Allow an immediate first request.
		lastRequest: now.Add(-time.Hour),
	}
}

// NewOrderLimiter creates the limiter for AlgoLab order endpoints: one call
// at a time with a fixed minimum spacing between calls.
func NewOrderLimiter(interval time.Duration) *RateLimiter {
	rl := NewRateLimiter(1, float64(time.Second)/float64(interval))
	rl.minInterval = interval
	return rl
}

// Wait blocks until a token is available and the minimum interval has
// passed, or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		wait := time.Duration(0)
		if r.minInterval > 0 {
			if since := time.Since(r.lastRequest); since < r.minInterval {
				wait = r.minInterval - since
			}
		}
		if wait == 0 && r.tokens >= 1 {
			r.tokens--
			r.lastRequest = time.Now()
			r.mu.Unlock()
			return nil
		}
		if wait == 0 {
			// No token yet; wait for the next refill slice.
			wait = time.Duration(float64(time.Second) / r.refillRate)
		}
		r.mu.Unlock()

		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire attempts to take a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.minInterval > 0 && time.Since(r.lastRequest) < r.minInterval {
		return false
	}
	if r.tokens >= 1 {
		r.tokens--
		r.lastRequest = time.Now()
		return true
	}
	return false
}

// refill adds tokens for elapsed time. Caller holds the mutex.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}
