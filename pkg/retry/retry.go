// Package retry provides the bounded retry helpers shared by waits, probes,
// scrolling and server start-up.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Zero means unbounded (MaxElapsed must then be set).
	MaxAttempts uint
	// Interval is the pause between attempts.
	Interval time.Duration
	// Exponential grows Interval by 1.5x up to MaxInterval.
	Exponential bool
	MaxInterval time.Duration
	// MaxElapsed stops retrying once this much time has passed. Zero means no limit.
	MaxElapsed time.Duration
	// OnRetry is called before each pause with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, next time.Duration)
}

// Constant returns a policy of n attempts spaced by interval.
func Constant(n uint, interval time.Duration) Policy {
	return Policy{MaxAttempts: n, Interval: interval}
}

// Once retries a single time immediately.
func Once() Policy {
	return Constant(2, 0)
}

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Interval)
	}
	b := backoff.NewExponentialBackOff()
	if p.Interval > 0 {
		b.InitialInterval = p.Interval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	return b
}

func (p Policy) options() []backoff.RetryOption {
	opts := []backoff.RetryOption{backoff.WithBackOff(p.backOff())}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxAttempts))
	}
	// backoff applies a 15 minute default; a zero MaxElapsed keeps that ceiling.
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if p.OnRetry != nil {
		attempt := 0
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			attempt++
			p.OnRetry(attempt, err, next)
		}))
	}
	return opts
}

// Do calls op until it succeeds, returns an error retryable rejects, or the
// policy is exhausted. The last error is returned unchanged.
// A nil retryable retries every error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, p.options()...)
	return unwrapPermanent(err)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, retryable func(error) bool, op func() (T, error)) (T, error) {
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.options()...)
	return v, unwrapPermanent(err)
}

// A permanent error on the final attempt comes back still wrapped.
func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

var errNotYet = errors.New("condition not met")

// Until polls predicate until it reports true. It returns (false, nil) when
// the policy is exhausted and (false, err) when predicate fails or ctx ends.
func Until(ctx context.Context, p Policy, predicate func() (bool, error)) (bool, error) {
	err := Do(ctx, p, func(err error) bool { return errors.Is(err, errNotYet) }, func() error {
		ok, err := predicate()
		if err != nil {
			return err
		}
		if !ok {
			return errNotYet
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNotYet):
		return false, nil
	default:
		return false, err
	}
}
