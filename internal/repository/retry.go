package repository

import (
	"context"
	"math"
	"math/rand"
	"time"

	apperrors "noesis-backend/pkg/errors"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int           // Maximum number of attempts, including the first
	BaseDelay     time.Duration // Base delay between retries
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Exponential backoff multiplier
	JitterFactor  float64       // Jitter factor to prevent thundering herd
}

// DefaultRetryConfig returns default retry configuration: the initial
// attempt plus up to three retries of a transient failure.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// IsRetryable reports whether an error warrants another attempt. Only
// transient unavailability is retried; NotFound, Conflict, ValidationFailed
// and CircuitOpen fail immediately.
func IsRetryable(err error) bool {
	return apperrors.IsUnavailable(err)
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// RetryWithBackoff executes an operation with exponential backoff retry
// logic. onRetry, when non-nil, is invoked before each re-attempt with the
// 1-based attempt number about to run.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation RetryableOperation, onRetry func(attempt int)) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return apperrors.NewUnavailable("operation cancelled", ctx.Err())
		default:
		}

		if attempt > 0 && onRetry != nil {
			onRetry(attempt + 1)
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(config, attempt)
		select {
		case <-ctx.Done():
			return apperrors.NewUnavailable("operation cancelled during backoff", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

// backoffDelay computes the delay before the next attempt with jitter.
func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.BackoffFactor, float64(attempt))
	if jitter := delay * config.JitterFactor; jitter > 0 {
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if max := float64(config.MaxDelay); delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
