package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryExhausted(t *testing.T) {
	var calls int32
	var delays []time.Duration
	boom := errors.New("boom")

	got, err := WithRetry(context.Background(), Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}, func(ctx context.Context) ([]int, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})

	assert.Nil(t, got)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestWithRetrySucceedsOnLaterAttempt(t *testing.T) {
	var calls int
	got, err := WithRetry(context.Background(), Config{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryTimesOutEachAttempt(t *testing.T) {
	var calls int32
	_, err := WithRetry(context.Background(), Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Timeout:     20 * time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	_, err := WithRetry(ctx, Config{
		MaxAttempts: 10,
		BaseDelay:   time.Hour,
		OnRetry: func(int, time.Duration, error) {
			cancel()
		},
	}, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("fail")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDelayRateLimited(t *testing.T) {
	limited := errors.New("429")
	cfg := Config{
		BaseDelay:       time.Second,
		RateLimitFactor: 2,
		IsRateLimited:   func(err error) bool { return errors.Is(err, limited) },
	}

	assert.Equal(t, time.Second, cfg.Delay(1, errors.New("other")))
	assert.Equal(t, 3*time.Second, cfg.Delay(3, errors.New("other")))
	assert.Equal(t, 2*time.Second, cfg.Delay(1, limited))
	assert.Equal(t, 4*time.Second, cfg.Delay(2, limited))
}
