package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned by Bounded when no attempt has succeeded.
var ErrExhausted = errors.New("retry exhausted")

// Permanent marks err as not worth retrying. Bounded stops at it, and returns err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// Immediately is a Backoff which does not wait. It only honours context cancellation.
var Immediately Backoff = func(ctx context.Context) error {
	return ctx.Err()
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// # Args
//
// - initialInterval: initial interval.
//
// - r: multiplier of interval.
//
// # Returns
//
// Backoff function.
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// Bounded calls f until its result satisfies done, at most `attempts` times.
//
// # Args
//
// - ctx: context. When it is done while waiting backoff, Bounded returns ctx.Err().
//
// - attempts: how many times f can be called. Values less than 1 are treated as 1.
//
// - b: backoff between attempts. It is not called before the first attempt.
//
// - f: the operation. It is called with the attempt number, starting from 1.
// When f returns an error marked by Permanent, Bounded stops and returns the error.
//
// - done: success predicate. An attempt succeeds when f returns nil error and done(value) is true.
//
// # Returns
//
// - T: value of the last attempt.
//
// - error: nil on success. Otherwise an error wrapping ErrExhausted and the last error of f, if any.
func Bounded[T any](
	ctx context.Context,
	attempts int,
	b Backoff,
	f func(nth int) (T, error),
	done func(T) bool,
) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var last T
	var lastErr error
	for nth := 1; nth <= attempts; nth++ {
		if 1 < nth {
			if err := b(ctx); err != nil {
				return last, err
			}
		}
		last, lastErr = f(nth)
		if p := new(permanentError); errors.As(lastErr, &p) {
			return last, p.err
		}
		if lastErr == nil && done(last) {
			return last, nil
		}
	}

	if lastErr != nil {
		return last, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
	}
	return last, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
