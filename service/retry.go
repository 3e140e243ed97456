package service

import (
	"context"
	"time"
)

// attempt runs fn up to maxAttempts times. A failed attempt is repeated
// only when retryable(err) reports true and the attempt budget allows;
// the delay before attempt n+1 is n*baseDelay. Non-retryable errors and
// the final attempt's error are returned as-is.
func attempt(ctx context.Context, maxAttempts int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	for n := 1; n <= maxAttempts; n++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || n == maxAttempts {
			return err
		}

		select {
		case <-time.After(time.Duration(n) * baseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
