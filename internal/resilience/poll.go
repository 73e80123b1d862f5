package resilience

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
)

// ErrPollLimit is returned when a poll loop runs out of iterations before the
// polled operation reached a terminal state.
var ErrPollLimit = eris.New("poll limit exceeded")

// PollConfig controls a fixed-interval poll loop.
type PollConfig struct {
	// Interval between polls. Default: 5s.
	Interval time.Duration
	// MaxPolls bounds the number of calls to the poll function. Zero means
	// unbounded; callers should rely on the context deadline then.
	MaxPolls int
	// Clock is the time source used for sleeping. Default: wall clock.
	Clock clock.Clock
}

// Poll calls fn until it reports done, returns an error, the context ends, or
// MaxPolls is exhausted. The first poll happens immediately. Sleeping holds no
// locks and stops as soon as ctx is done.
func Poll[T any](ctx context.Context, cfg PollConfig, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	var zero T
	for n := 1; ; n++ {
		val, done, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return val, nil
		}
		if cfg.MaxPolls > 0 && n >= cfg.MaxPolls {
			return val, eris.Wrapf(ErrPollLimit, "gave up after %d polls", n)
		}

		select {
		case <-ctx.Done():
			return val, eris.Wrap(ctx.Err(), "poll interrupted")
		case <-cfg.Clock.After(cfg.Interval):
		}
	}
}
