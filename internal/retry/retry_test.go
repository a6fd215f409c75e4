package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var notified []int
	p := Policy{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			notified = append(notified, attempt)
		},
	}

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "token", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "token", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 4, Delay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	terminal := errors.New("bad request")
	calls := 0
	p := Policy{
		MaxAttempts: 10,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoPermanent(t *testing.T) {
	terminal := errors.New("rejected")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 10, Delay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, Permanent(terminal)
		})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 10, Delay: time.Hour}, func(context.Context) (int, error) {
		return 0, errTransient
	})
	assert.Error(t, err)
}
