// Package timing holds the small set of context/timer primitives every
// long-running loop in criner is built from: a bounded wait, a
// deadline-aware wrapper around a blocking call, and two ticker loops
// (fixed interval, daily-at-clock-time) modeled on
// pkg/reconciler.Reconciler.run and pkg/health.ExecChecker.Check's use
// of context.WithTimeout.
package timing

import (
	"context"
	"time"

	"github.com/criner-dev/criner/pkg/errs"
)

// TimeoutAfter runs f in its own goroutine and returns its result, or
// an *errs.Error of KindTimeout if f hasn't returned within d. f is not
// canceled on timeout (it has no ctx to cancel) — the caller is
// expected to have built f from a context that timing itself derives,
// see Enforce.
func TimeoutAfter(d time.Duration, label string, f func() error) error {
	done := make(chan error, 1)
	go func() { done <- f() }()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errs.Timeout(d, label)
	}
}

// Enforce runs f with a context that is canceled after d, translating
// context.DeadlineExceeded into errs.Timeout so callers never need to
// inspect context errors directly.
func Enforce(ctx context.Context, d time.Duration, label string, f func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := f(cctx)
	if err != nil && cctx.Err() == context.DeadlineExceeded {
		return errs.Timeout(d, label)
	}
	return err
}

// EnforceThreaded is Enforce for functions that don't accept a context
// and must instead be raced against the deadline from a second
// goroutine — the same shape as TimeoutAfter, kept distinct so call
// sites can be explicit about which kind of cancellation a callee
// supports.
func EnforceThreaded(ctx context.Context, d time.Duration, label string, f func() error) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f() }()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return errs.Timeout(d, label)
	}
}

// WaitWithProgress blocks until deadline, calling tick every interval
// so a caller can report elapsed/remaining time. It returns early if
// ctx is canceled.
func WaitWithProgress(ctx context.Context, deadline time.Time, interval time.Duration, tick func(remaining time.Duration)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(time.Until(deadline))
		}
	}
}

// RepeatEveryS runs f once immediately and then every interval until
// ctx is canceled, mirroring pkg/reconciler.Reconciler.run's
// ticker+select loop.
func RepeatEveryS(ctx context.Context, interval time.Duration, f func(context.Context) error, onError func(error)) {
	if err := f(ctx); err != nil && onError != nil {
		onError(err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f(ctx); err != nil && onError != nil {
				onError(err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RepeatDailyAt runs f once per day at clock time hour:minute (local
// time), until ctx is canceled.
func RepeatDailyAt(ctx context.Context, hour, minute int, f func(context.Context) error, onError func(error)) {
	for {
		next := nextClockTime(time.Now(), hour, minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if err := f(ctx); err != nil && onError != nil {
				onError(err)
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func nextClockTime(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
