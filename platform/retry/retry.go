// Package retry runs startup steps that depend on services which may come
// up after the process does.
package retry

import (
	"context"
	"fmt"
	"time"

	"rental_inspections_backend/platform/logger"
)

// Do calls fn up to attempts times, sleeping attempt²·baseDelay between
// tries. It stops early when ctx is done and returns the last failure.
func Do(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: attempts must be positive", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if log != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", lastErr)
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt*attempt) * baseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}

// Value is Do for steps that produce a result.
func Value[T any](ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, log, name, attempts, baseDelay, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
