// Package retry consolidates the backoff-and-classify loop used for every
// external call the reconciliation engine makes. Transient failures
// (timeouts, rate-limit signals, write conflicts) are retried with jittered
// exponential backoff; mapping and validation failures are returned
// immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // ceiling after backoff and jitter
}

// DefaultConfig returns the bounds used for per-record writes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Transient reports whether an error is worth retrying. Validation and
// mapping failures are deterministic and never retried; everything else is
// retried only when it carries a recognizable transient signal.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var mapErr *domain.MappingError
	if errors.As(err, &mapErr) {
		return false
	}
	if errors.Is(err, domain.ErrValidationFailed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrWriteConflict) ||
		errors.Is(err, domain.ErrSourceUnavailable) ||
		errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// DoValue runs op until it succeeds, fails permanently, exhausts the
// attempt budget, or the context ends.
func DoValue[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := op(ctx)
		made = attempt
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Transient(err) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)):
		}
	}
	return zero, fmt.Errorf("after %d attempt(s): %w", made, lastErr)
}

// Do is DoValue for operations without a result.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// backoffDelay doubles the base delay per attempt with 0.5x-1.5x jitter to
// avoid thundering herds, capped at maxDelay.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	safe := attempt - 1
	if safe > 30 {
		safe = 30
	}
	delay := base * time.Duration(1<<safe)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
