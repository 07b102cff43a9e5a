package cache

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks an error as transient.
type RetryableError struct{ Err error }

// Retryable wraps err so [RetryPolicy.Do] retries it. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Error returns the error message of the wrapped error.
func (e *RetryableError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryPolicy bounds retries of a transient failure. The delay doubles
// after every attempt.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy makes 3 attempts starting with a 1s delay.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}

// Do calls fn until it succeeds, returns an error not wrapped with
// [Retryable], or runs out of attempts. Waiting stops early when ctx is
// done and ctx.Err() is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff runs fn under [DefaultRetryPolicy].
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return DefaultRetryPolicy.Do(ctx, fn)
}
