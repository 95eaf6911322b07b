package infra

import (
	"context"
	"math/rand"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// Decision is the outcome of a retry-policy evaluation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// RetryPolicy decides whether a failed broker call should be retried.
// It is a pure decision component: it never sleeps and never performs I/O.
// Only classified-transient errors are ever retried; validation errors,
// credential failures, and business rejections always give up.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxElapsed  time.Duration
}

// NewRetryPolicy builds a policy from config values (milliseconds).
func NewRetryPolicy(cfg *Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		MaxElapsed:  time.Duration(cfg.Retry.MaxElapsedMS) * time.Millisecond,
	}
}

// Decide evaluates the outcome of attempt (1-based) after elapsed total time.
// The returned delay is exponential in the attempt count with up to 50%
// positive jitter, capped at MaxDelay.
func (p RetryPolicy) Decide(attempt int, elapsed time.Duration, err error) Decision {
	if err == nil || !domain.IsTransient(err) {
		return GiveUp
	}
	if attempt >= p.MaxAttempts {
		return GiveUp
	}
	if p.MaxElapsed > 0 && elapsed >= p.MaxElapsed {
		return GiveUp
	}
	return Decision{Retry: true, Delay: p.backoff(attempt)}
}

// backoff returns BaseDelay * 2^(attempt-1) with jitter, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}

	delay := p.BaseDelay * time.Duration(1<<shift)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	// Up to +50% jitter so concurrent retries do not align.
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	if delay+jitter > p.MaxDelay {
		return p.MaxDelay
	}
	return delay + jitter
}

// Sleep waits for d, respecting context cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
