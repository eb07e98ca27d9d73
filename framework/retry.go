package framework

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is a fixed-interval retry budget.
type RetryPolicy struct {
	Attempts int           `yaml:"attempts" mapstructure:"attempts"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// Retry calls fn until it returns nil or the policy's attempts are used up, sleeping for
// the policy's interval between attempts (but not after the last one). Attempt numbers
// passed to fn start at 1. If every attempt fails, the returned error wraps both
// ErrRetriesExhausted and the last error from fn.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx, attempt); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
