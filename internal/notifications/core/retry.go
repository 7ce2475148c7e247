package core

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds, returns an error isRetryable rejects, the
// policy's attempts are exhausted or ctx is done. The error of the last
// attempt is returned; a context error is only returned when cancellation
// interrupted a wait.
//
// Delays between attempts follow CalculateNextRetry with the policy's jitter.
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	isRetryable func(error) bool,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	attempts := max(policy.MaxAttempts, 1)

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil || !isRetryable(err) || attempt == attempts-1 {
			return result, err
		}

		wait := jittered(policy, CalculateNextRetry(policy, attempt))
		if err := sleepContext(ctx, wait); err != nil {
			return result, err
		}
	}
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
