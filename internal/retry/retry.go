// Package retry wraps calls to remote capabilities with bounded exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const MaxRetries = 3

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Policy bounds how often and how patiently a call is retried.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Default retries up to MaxRetries times with jittered exponential backoff.
var Default = Policy{MaxAttempts: MaxRetries, Backoff: Backoff}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func (p Policy) Do(ctx context.Context, log *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Backoff
	}

	var lastErr error
	for attempt := range attempts {
		lastErr = fn(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if log != nil {
			log.Warn("retryable error", "op", op, "attempt", attempt, "error", lastErr)
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
