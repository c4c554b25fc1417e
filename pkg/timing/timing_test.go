package timing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/criner-dev/criner/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutAfterReturnsResultWhenFast(t *testing.T) {
	err := TimeoutAfter(50*time.Millisecond, "fast", func() error { return nil })
	assert.NoError(t, err)
}

func TestTimeoutAfterFiresOnSlowCall(t *testing.T) {
	err := TimeoutAfter(10*time.Millisecond, "slow", func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.Error(t, err)

	var target *errs.Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, errs.KindTimeout, target.Kind)
	assert.Equal(t, "slow", target.Label)
}

func TestEnforcePropagatesUnderlyingError(t *testing.T) {
	sentinel := errors.New("boom")
	err := Enforce(context.Background(), time.Second, "call", func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestEnforceTranslatesDeadlineExceeded(t *testing.T) {
	err := Enforce(context.Background(), 10*time.Millisecond, "call", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)

	var target *errs.Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, errs.KindTimeout, target.Kind)
}

func TestEnforceThreadedFiresOnSlowCall(t *testing.T) {
	err := EnforceThreaded(context.Background(), 10*time.Millisecond, "threaded", func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.Error(t, err)

	var target *errs.Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, errs.KindTimeout, target.Kind)
}

func TestWaitWithProgressTicksUntilDeadline(t *testing.T) {
	var ticks int
	deadline := time.Now().Add(30 * time.Millisecond)
	err := WaitWithProgress(context.Background(), deadline, 10*time.Millisecond, func(remaining time.Duration) {
		ticks++
	})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, ticks, 1)
}

func TestWaitWithProgressHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitWithProgress(ctx, time.Now().Add(time.Second), 10*time.Millisecond, func(time.Duration) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepeatEverySRunsImmediatelyThenOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs int
	done := make(chan struct{})

	go func() {
		RepeatEveryS(ctx, 10*time.Millisecond, func(context.Context) error {
			runs++
			if runs >= 3 {
				cancel()
			}
			return nil
		}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RepeatEveryS did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, runs, 3)
}

func TestNextClockTimeRollsToTomorrowWhenPast(t *testing.T) {
	from := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	next := nextClockTime(from, 9, 0)
	assert.Equal(t, time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), next)
}

func TestNextClockTimeSameDayWhenFuture(t *testing.T) {
	from := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)
	next := nextClockTime(from, 9, 0)
	assert.Equal(t, time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC), next)
}
