package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig holds tuning knobs for [Retry]. The defaults implement the
// upstream policy: three attempts, 200ms initial delay, doubling, capped at
// 5s, with full jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt. Default: 200ms.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default: 5s.
	MaxDelay time.Duration

	// Multiplier scales the delay between attempts. Default: 2.
	Multiplier float64

	// Retryable decides whether an error is worth another attempt. Nil
	// retries nothing, which makes an unconfigured policy safe against a
	// billed upstream.
	Retryable func(error) bool

	// sleep is replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// withDefaults fills zero fields.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// Retry runs fn up to cfg.MaxAttempts times, backing off between attempts.
// Only errors cfg.Retryable approves are retried; everything else returns
// immediately. Context cancellation aborts the wait and returns ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if cfg.Retryable == nil || !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("resilience: %d attempts exhausted: %w", cfg.MaxAttempts, err)
		}

		// Full jitter: sleep a uniform fraction of the current delay.
		wait := time.Duration(rand.Float64() * float64(delay))
		if serr := cfg.sleep(ctx, wait); serr != nil {
			return serr
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
