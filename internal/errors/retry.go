package errors

import (
	"context"
	"fmt"
	"time"
)

// BackoffPolicy configures the retry executor used by the reindex
// write path. It is a plain value so tests can exercise retry behavior
// without a real store client.
type BackoffPolicy struct {
	// MaxAttempts is the total number of attempts (first try included).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay grows after each retry.
	Multiplier float64
}

// DefaultBackoffPolicy returns the default policy for transient store
// failures: 3 attempts, 1s initial delay, doubling, capped at 16s.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes fn with exponential backoff. It retries only while fn
// returns a retryable error (see IsRetryable); validation errors, fatal
// parse errors, and other permanent failures propagate immediately with
// no further attempts. If notify is non-nil it is called before each
// sleep with the attempt number (1-based) and the error that caused it.
func Retry(ctx context.Context, policy BackoffPolicy, fn func() error, notify func(attempt int, err error)) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if notify != nil {
			notify(attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}
