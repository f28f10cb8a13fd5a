package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation does not finish before its deadline.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs op with a deadline. Whichever of op and the deadline
// finishes first wins. The derived context is cancelled on every return
// path, which stops the deadline timer and tells a still-running op to
// give up.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := op(opCtx)
		done <- result{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
