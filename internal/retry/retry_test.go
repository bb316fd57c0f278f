package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient failure")

func fastPolicy(maxAttempts int, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Retryable:    retryable,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(3, nil).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	err := fastPolicy(3, nil).Do(context.Background(), func() error {
		calls++
		return errTransient
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errTransient)
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	policy := fastPolicy(5, func(err error) bool {
		return errors.Is(err, errTransient)
	})

	err := policy.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
	}

	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error { return errTransient })
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), fastPolicy(3, nil), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestPolicy_DelaySchedule(t *testing.T) {
	// Without jitter the backoff sequence is deterministic: the engine must
	// honor the initial delay, the multiplier, and the cap.
	p := Policy{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   2,
	}

	bo := p.backOff(context.Background())
	assert.Equal(t, 10*time.Millisecond, bo.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, bo.NextBackOff())
	assert.Equal(t, 25*time.Millisecond, bo.NextBackOff())
}
