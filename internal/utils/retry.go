package utils

import (
	"context"
	"time"
)

// Backoff describes a bounded retry: Attempts tries in total, waiting
// Initial before the second try and doubling the wait after each failure.
type Backoff struct {
	Attempts int
	Initial  time.Duration
}

// sleep is replaced in tests to observe the waits.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds or the attempts run out, and returns the
// last error. There is no wait after the final attempt.
func Retry(ctx context.Context, b Backoff, fn func(attempt int) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Initial

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay *= 2
	}
	return err
}
