package poll_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/poll"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func sequence(values ...string) func(context.Context) (string, error) {
	var i atomic.Int32
	return func(context.Context) (string, error) {
		n := int(i.Add(1)) - 1
		if n >= len(values) {
			return values[len(values)-1], nil
		}
		return values[n], nil
	}
}

func isApproved(s string) bool { return s == "approved" }

func TestUntilStopsOnTerminal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	seq := sequence("pending", "pending", "approved")
	query := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return seq(ctx)
	}

	res := poll.Until(context.Background(), poll.Config{
		Interval: 5 * time.Millisecond,
		Ceiling:  time.Second,
		Logger:   slogx.Discard(),
	}, query, isApproved)

	require.Equal(t, poll.Terminal, res.Outcome)
	require.Equal(t, "approved", res.Value)
	require.Equal(t, 3, res.Queries)

	// Nothing keeps polling in the background.
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 3, calls.Load())
}

func TestUntilCeiling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	query := func(context.Context) (string, error) {
		calls.Add(1)
		return "pending", nil
	}

	start := time.Now()
	res := poll.Until(context.Background(), poll.Config{
		Interval: 10 * time.Millisecond,
		Ceiling:  50 * time.Millisecond,
		Logger:   slogx.Discard(),
	}, query, isApproved)

	require.Equal(t, poll.TimedOut, res.Outcome)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	after := calls.Load()
	require.GreaterOrEqual(t, after, int32(2))
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, after, calls.Load(), "no queries after the ceiling")
}

func TestUntilSwallowsQueryErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	query := func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return "approved", nil
	}

	res := poll.Until(context.Background(), poll.Config{
		Interval: 5 * time.Millisecond,
		Ceiling:  time.Second,
		Logger:   slogx.Discard(),
	}, query, isApproved)

	require.Equal(t, poll.Terminal, res.Outcome)
	require.Equal(t, 3, res.Queries)
}

func TestUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	query := func(context.Context) (string, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return "pending", nil
	}

	res := poll.Until(ctx, poll.Config{
		Interval: 5 * time.Millisecond,
		Ceiling:  time.Second,
		Logger:   slogx.Discard(),
	}, query, isApproved)

	require.Equal(t, poll.Cancelled, res.Outcome)
	require.EqualValues(t, 2, calls.Load())
}

func TestUntilQueriesDoNotOverlap(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32
	var calls atomic.Int32
	query := func(context.Context) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		// Slower than the interval.
		time.Sleep(15 * time.Millisecond)
		if calls.Add(1) == 4 {
			return "approved", nil
		}
		return "pending", nil
	}

	res := poll.Until(context.Background(), poll.Config{
		Interval: time.Millisecond,
		Ceiling:  time.Second,
		Logger:   slogx.Discard(),
	}, query, isApproved)

	require.Equal(t, poll.Terminal, res.Outcome)
	require.EqualValues(t, 1, maxInFlight.Load())
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "terminal", poll.Terminal.String())
	require.Equal(t, "timed_out", poll.TimedOut.String())
	require.Equal(t, "cancelled", poll.Cancelled.String())
}
