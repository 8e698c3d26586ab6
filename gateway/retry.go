package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// transientError marks a failure worth retrying: transport errors, 429 and
// 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// retryWithBackoff executes fn with exponential backoff on transient errors.
// maxRetries is the number of retries after the first attempt.
func retryWithBackoff[T any](ctx context.Context, logger *slog.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		var te *transientError
		if !errors.As(lastErr, &te) {
			return result, lastErr
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			logger.Warn("retrying after transient error",
				"operation", operation,
				"attempt", attempt+1,
				"max_attempts", maxRetries+1,
				"delay", delay,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return result, fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return result, lastErr
}
