package crawler

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy decides how region crawls are reattempted.
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt follows a failed attempt number attempt (1-based).
	ShouldRetry(err error, attempt int) bool
	// Backoff returns the wait before the attempt following attempt.
	Backoff(attempt int) time.Duration
	// MaxAttempts bounds the number of attempts per region.
	MaxAttempts() int
}

// FixedRetryPolicy retries every failure up to a fixed attempt budget with a constant sleep.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedRetryPolicy builds a policy; non-positive attempts default to 1.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts, delay: delay}
}

// ShouldRetry retries anything except cancellation of the whole run.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff returns the fixed delay.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}

// MaxAttempts returns the attempt budget.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
