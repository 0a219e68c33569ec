// Package retry provides bounded retries with exponential backoff and jitter
// for outbound calls such as risk oracle fetches.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error that should not be retried, such as a 4xx
// response that will not improve on a second attempt.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops immediately instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times. It stops early when fn succeeds,
// when fn returns a *PermanentError, or when ctx is cancelled during
// backoff. baseDelay doubles after each failure, with +-25% jitter so
// synchronized callers spread out.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// No sleep after the final attempt.
		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}

		delay *= 2
	}

	return err
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := d / 4
	return d - spread + time.Duration(rand.Int64N(int64(2*spread+1)))
}
