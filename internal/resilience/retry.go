// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"time"
)

// RetryPolicy shapes the backoff schedule: BaseDelay after the first
// failure, multiplied by Factor after each further one.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     int
}

// DefaultRetryPolicy retries three times at 10ms, 40ms, and 160ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		Factor:     4,
	}
}

// Retry runs fn until it succeeds, the schedule is exhausted, or the
// context ends. The last error is returned; context errors win over
// work errors once the context is done.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	delay := policy.BaseDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= policy.MaxRetries {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= time.Duration(policy.Factor)
	}
}
