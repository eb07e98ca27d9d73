package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsOnLaterAttempt(t *testing.T) {
	var attempts []int
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, Interval: time.Millisecond},
		func(ctx context.Context, attempt int) error {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return errors.New("not yet")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	lastErr := errors.New("connection refused")
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 10, Interval: time.Millisecond},
		func(ctx context.Context, attempt int) error {
			calls++
			return lastErr
		})

	assert.Equal(t, 10, calls)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, lastErr))
}

func TestRetryDoesNotSleepAfterLastAttempt(t *testing.T) {
	startTime := time.Now()
	_ = Retry(context.Background(), RetryPolicy{Attempts: 1, Interval: time.Hour},
		func(ctx context.Context, attempt int) error { return errors.New("no") })

	assert.Less(t, int64(time.Since(startTime)), int64(time.Second))
}

func TestRetryStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{Attempts: 10, Interval: time.Hour},
		func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errors.New("no")
		})

	assert.Equal(t, 1, calls)
	assert.Equal(t, context.Canceled, err)
}

func TestRetryWithZeroAttemptsTriesOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{}, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
