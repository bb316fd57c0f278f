package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential-backoff retry schedule. The delay before
// attempt n (1-indexed) is min(InitialDelay * Multiplier^(n-1), MaxDelay),
// randomized into [0.5*delay, 1.5*delay] when Jitter is on so that many
// callers do not retry in lockstep.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt delay.
	MaxDelay time.Duration
	// Multiplier is the exponential base. Zero means 2.
	Multiplier float64
	// Jitter randomizes each delay into [0.5*delay, 1.5*delay].
	Jitter bool
	// Retryable reports whether an error is worth another attempt. A nil
	// classifier retries everything. Non-retryable errors propagate
	// immediately without consuming further attempts.
	Retryable func(error) bool
}

// DefaultPolicy mirrors the transient-error preset: three attempts starting
// at one second, capped at a minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Do invokes op until it succeeds or the attempt budget is exhausted.
// Exhaustion returns the last error op produced, not a synthetic one.
// Context cancellation aborts the wait between attempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, p.backOff(ctx))
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func() error {
		var opErr error
		result, opErr = fn()
		return opErr
	})
	return result, err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Multiplier = p.Multiplier
	if exp.Multiplier <= 0 {
		exp.Multiplier = 2
	}
	if p.Jitter {
		exp.RandomizationFactor = 0.5
	} else {
		exp.RandomizationFactor = 0
	}
	exp.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var bo backoff.BackOff = exp
	bo = backoff.WithMaxRetries(bo, uint64(attempts-1))
	return backoff.WithContext(bo, ctx)
}
