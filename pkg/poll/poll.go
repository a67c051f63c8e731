// Package poll repeatedly queries a value until it reaches a terminal state,
// a wall-clock ceiling passes, or the caller cancels.
//
// It stands in for a push channel: call sites depend only on Until, so the
// transport behind the query can change without touching them.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultCeiling  = 5 * time.Minute
)

// Outcome says why polling stopped.
type Outcome int

const (
	// Terminal means the query returned a value the predicate accepted.
	Terminal Outcome = iota + 1
	// TimedOut means the ceiling elapsed first. It is not an error: the
	// value may still change, we just stopped asking.
	TimedOut
	// Cancelled means the caller's context ended.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Terminal:
		return "terminal"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Config struct {
	Interval time.Duration // between query starts (default 3s)
	Ceiling  time.Duration // total wall-clock budget (default 5m)
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Result is what Until stopped with. Value is the last successful query
// result, or the zero value if none succeeded.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Queries int
}

// Until runs query immediately and then once per interval until terminal
// reports true, the ceiling elapses, or ctx is done. Queries never overlap:
// the next one is only scheduled after the previous returned. Query errors
// are logged and the loop carries on at the next tick.
func Until[T any](
	ctx context.Context,
	cfg Config,
	query func(ctx context.Context) (T, error),
	terminal func(T) bool,
) Result[T] {
	cfg = cfg.withDefaults()

	pollCtx, cancel := context.WithTimeout(ctx, cfg.Ceiling)
	defer cancel()

	// Burst of one: the first Wait returns at once, later ones are spaced by
	// Interval measured from the previous query start.
	limiter := rate.NewLimiter(rate.Every(cfg.Interval), 1)

	var res Result[T]
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			// Wait fails early when the next slot lies past the deadline.
			res.Outcome = stopReason(ctx, err)
			return res
		}

		value, err := query(pollCtx)
		res.Queries++
		if err != nil {
			if pollCtx.Err() != nil {
				res.Outcome = stopReason(ctx, pollCtx.Err())
				return res
			}
			cfg.Logger.Warn("poll query failed, retrying on next tick",
				"error", err,
				"attempt", res.Queries,
			)
			continue
		}

		res.Value = value
		if terminal(value) {
			res.Outcome = Terminal
			return res
		}
	}
}

// stopReason distinguishes caller cancellation from the ceiling.
func stopReason(parent context.Context, err error) Outcome {
	if parent.Err() != nil {
		return Cancelled
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return TimedOut
}
