package bus

import (
	"context"
	"errors"
	"time"
)

var errNoAttempts = errors.New("retryWithBackoff: MaxAttempts must be > 0")

// RetryConfig controls the retry behavior of retryWithBackoff.
type RetryConfig struct {
	MaxAttempts int           // required, must be > 0
	BaseDelay   time.Duration // initial backoff delay
	MaxDelay    time.Duration // cap on delay (defaults to 10s if zero)
}

// retryWithBackoff calls fn up to cfg.MaxAttempts times with exponential
// backoff. Only request timeouts are retried; any other error is returned at
// once.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		return errNoAttempts
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, ErrRequestTimeout) {
			return lastErr
		}

		// Don't sleep after the last attempt.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		// Exponential backoff: baseDelay * 2^attempt, capped at maxDelay.
		delay := min(cfg.BaseDelay<<uint(attempt), cfg.MaxDelay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
