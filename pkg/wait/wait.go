// Package wait is the synchronization engine: every interaction waits here
// for its element to reach a condition, with one timeout source and one
// failure vocabulary.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
)

// DefaultPoll matches the remote protocol's polling granularity.
const DefaultPoll = 200 * time.Millisecond

// Default timeouts per surface.
const (
	DefaultWebTimeout    = 10 * time.Second
	DefaultMobileTimeout = 15 * time.Second
)

// ErrCheckStalled is recorded when a driver call is still running at the
// point the wait has to give up on it.
var ErrCheckStalled = errors.New("driver call did not return before the deadline")

// Condition is the state an element must reach.
type Condition int

const (
	Present   Condition = iota // resolvable by locator
	Visible                    // present and displayed
	Clickable                  // visible and enabled
)

// String returns the condition name used in logs and errors.
func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return "unknown"
	}
}

// Waiter evaluates wait conditions against a driver.
type Waiter struct {
	Timeout  time.Duration
	Poll     time.Duration
	Reporter *report.Reporter
	Metrics  *metrics.Metrics
}

// New returns a waiter with the given default timeout.
func New(timeout time.Duration) *Waiter {
	return &Waiter{Timeout: timeout, Poll: DefaultPoll}
}

// ForSurface returns a waiter using the configured explicit timeout for the
// surface (web.timeout.explicit / mobile.timeout.explicit) and poll interval.
func ForSurface(cfg *config.Properties, surface core.Surface) *Waiter {
	if cfg == nil {
		cfg = config.New()
	}
	timeout := cfg.Seconds(config.WebExplicitTimeout, DefaultWebTimeout)
	if surface == core.SurfaceMobile {
		timeout = cfg.Seconds(config.MobileExplicitTimeout, DefaultMobileTimeout)
	}
	return &Waiter{
		Timeout: timeout,
		Poll:    cfg.Millis(config.WaitPollMillis, DefaultPoll),
	}
}

type options struct {
	timeout time.Duration
	poll    time.Duration
}

// Option overrides a waiter default for one call.
type Option func(*options)

// WithTimeout overrides the timeout for one call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithPoll overrides the poll interval for one call.
func WithPoll(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

func (w *Waiter) resolve(opts []Option) options {
	o := options{timeout: DefaultWebTimeout, poll: DefaultPoll}
	if w != nil {
		if w.Timeout > 0 {
			o.timeout = w.Timeout
		}
		if w.Poll > 0 {
			o.poll = w.Poll
		}
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.poll <= 0 {
		o.poll = DefaultPoll
	}
	return o
}

func (w *Waiter) reporter() *report.Reporter {
	if w == nil {
		return nil
	}
	return w.Reporter
}

func (w *Waiter) metrics() *metrics.Metrics {
	if w == nil {
		return nil
	}
	return w.Metrics
}

// Await polls until loc satisfies cond, then returns the resolved element.
//
// Not-found and stale results keep polling. Any other driver error aborts
// with *core.WaitFailureError. When the deadline passes a final check is
// made and, if it fails, *core.WaitTimeoutError is returned. Each check is
// bounded by the time left, or one poll interval for the final check, so a
// stalled driver call cannot stretch the wait past timeout plus one poll.
func (w *Waiter) Await(ctx context.Context, drv core.Driver, loc core.Locator, cond Condition, desc string, opts ...Option) (core.Element, error) {
	o := w.resolve(opts)
	rep := w.reporter()

	if loc.IsZero() {
		err := &core.ElementNotFoundError{Description: desc, Locator: loc}
		rep.Fail("%s", err.Error())
		return core.Element{}, err
	}

	rep.Debug("Waiting up to %s for %s to be %s", o.timeout, desc, cond)
	start := time.Now()
	deadline := start.Add(o.timeout)

	var lastErr error
	for {
		res, err := within(ctx, budget(deadline, o.poll), func() (checkResult, error) {
			id, ok, err := check(drv, loc, cond)
			return checkResult{id: id, ok: ok}, err
		})
		id, ok := res.id, res.ok
		switch {
		case err == nil && ok:
			w.metrics().ObserveWait(cond.String(), metrics.OutcomeOK, time.Since(start))
			rep.Info("%s is %s", desc, cond)
			return core.Element{ID: id, Locator: loc, Description: desc}, nil
		case err != nil && !IsTransient(err) && !errors.Is(err, ErrCheckStalled):
			w.metrics().ObserveWait(cond.String(), metrics.OutcomeFailure, time.Since(start))
			failure := &core.WaitFailureError{Description: desc, Condition: cond.String(), Locator: loc, Cause: err}
			rep.Error("%s", failure.Error())
			return core.Element{}, failure
		case err != nil:
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.metrics().ObserveWait(cond.String(), metrics.OutcomeTimeout, time.Since(start))
			timeout := &core.WaitTimeoutError{
				Description: desc,
				Condition:   cond.String(),
				Locator:     loc,
				Timeout:     o.timeout,
				LastErr:     lastErr,
			}
			rep.Fail("%s", timeout.Error())
			return core.Element{}, timeout
		}

		if err := Sleep(ctx, minDuration(o.poll, remaining)); err != nil {
			w.metrics().ObserveWait(cond.String(), metrics.OutcomeFailure, time.Since(start))
			failure := &core.WaitFailureError{Description: desc, Condition: cond.String(), Locator: loc, Cause: err}
			rep.Error("%s", failure.Error())
			return core.Element{}, failure
		}
	}
}

// Until polls predicate with the same deadline rules as Await.
// Errors from predicate abort the wait with *core.WaitFailureError.
func (w *Waiter) Until(ctx context.Context, desc string, predicate func() (bool, error), opts ...Option) error {
	o := w.resolve(opts)
	rep := w.reporter()
	start := time.Now()
	deadline := start.Add(o.timeout)

	for {
		ok, err := within(ctx, budget(deadline, o.poll), predicate)
		if errors.Is(err, ErrCheckStalled) {
			ok, err = false, nil
		}
		if err != nil {
			w.metrics().ObserveWait("predicate", metrics.OutcomeFailure, time.Since(start))
			failure := &core.WaitFailureError{Description: desc, Condition: "true", Cause: err}
			rep.Error("%s", failure.Error())
			return failure
		}
		if ok {
			w.metrics().ObserveWait("predicate", metrics.OutcomeOK, time.Since(start))
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.metrics().ObserveWait("predicate", metrics.OutcomeTimeout, time.Since(start))
			timeout := &core.WaitTimeoutError{Description: desc, Condition: "true", Timeout: o.timeout}
			rep.Fail("%s", timeout.Error())
			return timeout
		}
		if err := Sleep(ctx, minDuration(o.poll, remaining)); err != nil {
			failure := &core.WaitFailureError{Description: desc, Condition: "true", Cause: err}
			rep.Error("%s", failure.Error())
			return failure
		}
	}
}

type checkResult struct {
	id string
	ok bool
}

// budget is how long the next check may run: the time left, but never less
// than one poll so the final check after the deadline still gets a chance.
func budget(deadline time.Time, poll time.Duration) time.Duration {
	if remaining := time.Until(deadline); remaining > poll {
		return remaining
	}
	return poll
}

// within runs fn and stops waiting for it after d or when ctx ends. An
// abandoned call finishes in the background; its result is discarded.
func within[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-done:
		return r.v, r.err
	case <-t.C:
		return zero, ErrCheckStalled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Check evaluates cond once without waiting.
func Check(drv core.Driver, loc core.Locator, cond Condition) (string, bool, error) {
	return check(drv, loc, cond)
}

func check(drv core.Driver, loc core.Locator, cond Condition) (string, bool, error) {
	id, err := drv.FindElement(loc)
	if err != nil {
		return "", false, err
	}
	if cond == Present {
		return id, true, nil
	}

	displayed, err := drv.IsDisplayed(id)
	if err != nil || !displayed {
		return id, false, err
	}
	if cond == Visible {
		return id, true, nil
	}

	enabled, err := drv.IsEnabled(id)
	if err != nil {
		return id, false, err
	}
	return id, enabled, nil
}

// IsTransient reports driver errors that mean "not yet", not "broken".
func IsTransient(err error) bool {
	return core.IsNotFound(err) || core.IsStale(err)
}

// Sleep pauses for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
