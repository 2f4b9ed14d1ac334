// Package retry provides exponential backoff retry logic for outbound calls;
// its caller in this module is the Mattermost REST client.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/chatmesh/internal/errors"
)

// Config holds retry configuration for a single Do call.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry, when set, is invoked before each backoff sleep with the
	// attempt number (0-indexed), the delay about to be slept, and the
	// error that triggered the retry. Callers use this to log without Do
	// itself taking a dependency on a logger.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the retry policy used by the Mattermost REST client:
// three attempts, 500ms base delay doubling up to a 10s ceiling, jitter
// applied.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do executes fn, retrying with exponential backoff as long as the returned
// error is classified retryable by perrors.IsRetryable and attempts remain.
// ctx cancellation aborts a pending backoff sleep immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay computes the delay before the next attempt: BaseDelay doubled
// once per prior attempt, capped at MaxDelay, with jitter (a uniform
// random delay between 50% and 100% of the computed value) applied when
// cfg.Jitter is set to avoid synchronized retry storms across adapters.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}
