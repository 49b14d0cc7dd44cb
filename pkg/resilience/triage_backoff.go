// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy describes how an external call wrapper retries transient
// failures: bounded attempts, exponential delay, optional jitter.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.0 - 1.0 fraction of the delay randomized
}

// DefaultBackoffPolicy returns sensible defaults for network-bound calls.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    15 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the delay before the given attempt (0-based).
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseDelay
	}
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	return d
}

// Retryable reports whether a failure should be retried. Nil means all
// errors are retryable.
type Retryable func(error) bool

// Execute runs fn with the policy, sleeping between attempts. The last
// error is returned when attempts are exhausted or the context is done.
func (p *BackoffPolicy) Execute(ctx context.Context, fn func() error) error {
	return p.ExecuteIf(ctx, fn, nil)
}

// ExecuteIf runs fn with the policy but only retries errors accepted by
// shouldRetry.
func (p *BackoffPolicy) ExecuteIf(ctx context.Context, fn func() error, shouldRetry Retryable) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
