package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched by errors.Is on an *ExhaustedError.
var ErrExhausted = errors.New("retries exhausted")

// ExhaustedError is returned by WithRetry after the last attempt fails.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Config controls WithRetry.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds each attempt; zero disables the per-attempt deadline.
	Timeout time.Duration
	// RateLimitFactor multiplies the delay when IsRateLimited reports true.
	RateLimitFactor int
	IsRateLimited   func(error) bool
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * attempt, scaled by RateLimitFactor for rate-limit errors.
func (c Config) Delay(attempt int, err error) time.Duration {
	delay := c.BaseDelay * time.Duration(attempt)
	if c.IsRateLimited != nil && c.RateLimitFactor > 1 && err != nil && c.IsRateLimited(err) {
		delay *= time.Duration(c.RateLimitFactor)
	}
	return delay
}

// WithRetry calls factory up to MaxAttempts times, each attempt bounded by
// Timeout and waiting Delay(attempt) before the next. factory must build a
// fresh request every call. On exhaustion it returns the zero value and an
// *ExhaustedError; it never panics.
func WithRetry[T any](ctx context.Context, cfg Config, factory func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := WithTimeout(ctx, cfg.Timeout, factory)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if attempt == attempts {
			break
		}

		delay := cfg.Delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Last: lastErr}
}
