// Package retry is the shared retry policy applied around scraper
// targets and pipeline stages. One policy object owns max attempts,
// the delay curve, and which error kinds are retryable, so back-off
// behavior is uniform instead of scattered per caller.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy describes bounded retries with exponential back-off.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// BaseDelay is the wait after the first failure, doubled each
	// attempt. Default: 1s.
	BaseDelay time.Duration
	// Retryable reports whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool

	Logger *slog.Logger
}

func (p Policy) defaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// Do runs op until it succeeds, the policy is exhausted, the error is
// not retryable, or ctx is done. Back-off waits respect cancellation.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	p = p.defaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.BaseDelay * (1 << uint(attempt-1))
			p.Logger.Warn("retrying",
				"op", name,
				"attempt", attempt+1,
				"max_attempts", p.MaxAttempts,
				"backoff_ms", wait.Milliseconds(),
				"error", lastErr)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(wait):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return lastErr
		}
	}
	return lastErr
}
