// Package poll waits for a condition with a bounded constant backoff.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrTimeout is returned when the condition was not met before the deadline.
var ErrTimeout = errors.New("poll: condition not met before timeout")

var errNotYet = errors.New("not yet")

// DefaultInterval is used when Options.Interval is zero.
const DefaultInterval = 250 * time.Millisecond

// Options bounds a poll loop.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Func is checked on every attempt. It reports the value and whether the
// condition holds. A plain error is retried; wrap it with Stop to abort.
type Func[T any] func(ctx context.Context) (T, bool, error)

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as fatal so Until returns it without retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Until calls fn until it reports true, the timeout elapses or ctx ends.
// On timeout the returned error wraps ErrTimeout and, when fn failed on its
// last attempt, that failure too.
func Until[T any](ctx context.Context, opts Options, fn Func[T]) (T, error) {
	var zero T

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		return zero, ErrTimeout
	}

	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var lastErr error
	backoff := retry.WithMaxDuration(opts.Timeout, retry.NewConstant(interval))
	v, err := retry.DoValue(pollCtx, backoff, func(ctx context.Context) (T, error) {
		v, ok, err := fn(ctx)
		if err != nil {
			var stop *stopError
			if errors.As(err, &stop) {
				return zero, stop.err
			}
			lastErr = err
			return zero, retry.RetryableError(err)
		}
		if !ok {
			lastErr = nil
			return zero, retry.RetryableError(errNotYet)
		}
		return v, nil
	})
	if err == nil {
		return v, nil
	}

	// The parent context ending is the caller's problem, not a timeout.
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errNotYet) || (lastErr != nil && errors.Is(err, lastErr)) {
		if lastErr != nil {
			return zero, fmt.Errorf("%w: %w", ErrTimeout, lastErr)
		}
		return zero, ErrTimeout
	}
	return zero, err
}
