package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutExpires(t *testing.T) {
	released := make(chan struct{})
	start := time.Now()

	_, err := WithTimeout(context.Background(), 100*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(released)
		return 0, ctx.Err()
	})

	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatalf("operation context was not cancelled after timeout")
	}
}

func TestWithTimeoutReturnsResult(t *testing.T) {
	var opCtx context.Context
	got, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		opCtx = ctx
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	// The deadline is released as soon as the operation wins.
	assert.ErrorIs(t, opCtx.Err(), context.Canceled)
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, 5*time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWithTimeoutDisabled(t *testing.T) {
	got, err := WithTimeout(context.Background(), 0, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
