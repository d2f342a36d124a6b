package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errThrottled = errors.New("throttled")

// fastSleep records requested waits without actually sleeping.
func fastSleep(waits *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 3,
		Retryable:   func(error) bool { return true },
	}, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryBoundedAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return errors.Is(err, errThrottled) },
		sleep:       fastSleep(&waits),
	}, func(context.Context) error {
		calls++
		return errThrottled
	})
	if calls != 3 {
		t.Errorf("calls = %d, want exactly 3", calls)
	}
	if !errors.Is(err, errThrottled) {
		t.Errorf("final error should wrap the last failure, got %v", err)
	}
	if len(waits) != 2 {
		t.Errorf("waited %d times, want 2", len(waits))
	}
}

func TestRetryNonRetryableSurfacesImmediately(t *testing.T) {
	denied := errors.New("access denied")
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errThrottled) },
	}, func(context.Context) error {
		calls++
		return denied
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, denied) {
		t.Errorf("err = %v, want the original failure", err)
	}
}

func TestRetryNilRetryableNeverRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5}, func(context.Context) error {
		calls++
		return errThrottled
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errThrottled) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRetryBackoffCapped(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{
		MaxAttempts:  6,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2,
		Retryable:    func(error) bool { return true },
		sleep:        fastSleep(&waits),
	}
	_ = Retry(context.Background(), cfg, func(context.Context) error { return errThrottled })

	if len(waits) != 5 {
		t.Fatalf("waited %d times, want 5", len(waits))
	}
	// Jitter draws uniformly below the current delay, which is capped.
	for i, w := range waits {
		if w > 500*time.Millisecond {
			t.Errorf("wait[%d] = %v exceeds the cap", i, w)
		}
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{
		MaxAttempts: 5,
		Retryable:   func(error) bool { return true },
		sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(context.Context) error {
		calls++
		return errThrottled
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
