package resilient

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
)

// RetryConfig configures Retry, a generic retry with full jitter
// and retryable-kind filtering: only venue.Error with Retryable() true (or
// an error outside the venue.Error taxonomy, which is treated as
// retryable by default) is retried; Auth/InsufficientFunds/MarketClosed
// fail fast.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches the spec's network-retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping a full-jitter
// exponential backoff between attempts, and stops early on a
// non-retryable venue.Error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var verr *venue.Error
		if errors.As(err, &verr) && !verr.Retryable() {
			return zero, err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffWithFullJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func backoffWithFullJitter(base, max time.Duration, attempt int) time.Duration {
	capped := base << attempt
	if capped <= 0 || capped > max {
		capped = max
	}
	return time.Duration(rand.Int63n(int64(capped) + 1))
}
