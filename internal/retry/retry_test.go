package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func noWait(int) time.Duration { return 0 }

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&RetryableError{StatusCode: 503}) {
		t.Fatal("expected RetryableError to be retryable")
	}
	wrapped := fmt.Errorf("classify: %w", &RetryableError{StatusCode: 429})
	if !IsRetryable(wrapped) {
		t.Fatal("expected wrapped RetryableError to be retryable")
	}
	if IsRetryable(errors.New("bad request")) {
		t.Fatal("plain error should not be retryable")
	}
}

func TestBackoffCapped(t *testing.T) {
	for attempt := range 10 {
		d := Backoff(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: expected positive backoff, got %s", attempt, d)
		}
		if d > 45*time.Second {
			t.Fatalf("attempt %d: backoff %s exceeds cap plus jitter", attempt, d)
		}
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: noWait}
	calls := 0
	err := p.Do(context.Background(), nil, "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &RetryableError{StatusCode: 503, Message: "busy"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: noWait}
	calls := 0
	err := p.Do(context.Background(), nil, "test", func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one failing call, got calls=%d err=%v", calls, err)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 2, Backoff: noWait}
	calls := 0
	err := p.Do(context.Background(), nil, "test", func(context.Context) error {
		calls++
		return &RetryableError{StatusCode: 500, Message: strings.Repeat("x", 300)}
	})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Fatalf("expected truncated message, got %q", err.Error())
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Hour }}
	err := p.Do(ctx, nil, "test", func(context.Context) error {
		return &RetryableError{StatusCode: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
