package notify

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// JitterFraction randomizes each wait by ±fraction.
	JitterFraction float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.1,
	}
}

// retryWithBackoff runs op until it succeeds, returns a permanent error, the
// attempts run out, or ctx is done. It returns the attempt count and the last error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func(context.Context) error) (int, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return attempt, lastErr
		}
		if ctx.Err() != nil {
			return attempt, lastErr
		}
		if attempt == cfg.MaxAttempts {
			return attempt, lastErr
		}

		jitter := time.Duration(float64(backoff) * cfg.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(sleep):
		}

		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return cfg.MaxAttempts, lastErr
}
