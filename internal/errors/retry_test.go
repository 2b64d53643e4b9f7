package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return StoreError("store unavailable", nil)
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return StoreError("store unavailable", nil)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestRetry_FatalErrorNoRetry(t *testing.T) {
	// An unsupported archive must fail the rebuild immediately, with no
	// retry attempts.
	calls := 0
	notified := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return UnsupportedFormatError("no ZIP signature", nil)
	}, func(int, error) { notified++ })

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, notified)
	assert.True(t, IsFatal(err))
}

func TestRetry_ValidationErrorNoRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return ValidationError("empty query", nil)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_NotifyReceivesAttempts(t *testing.T) {
	var attempts []int
	_ = Retry(context.Background(), fastPolicy(), func() error {
		return StoreError("down", nil)
	}, func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
	})

	// Two sleeps between three attempts.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastPolicy(), func() error {
		return StoreError("down", nil)
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_ZeroAttemptsClampedToOne(t *testing.T) {
	calls := 0
	policy := BackoffPolicy{MaxAttempts: 0, InitialDelay: time.Millisecond, Multiplier: 2}
	err := Retry(context.Background(), policy, func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
