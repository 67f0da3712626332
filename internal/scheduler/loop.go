package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one collector tick and returns how long to sleep before the
// next one. The interval comes back from the tick because configuration is
// reloaded inside it and may change the cadence live.
type TickFunc func(ctx context.Context, now time.Time) (time.Duration, error)

// Loop drives the outer tick cycle. The first tick fires immediately; the
// sleep between ticks is interruptible by context cancellation.
type Loop struct {
	logger zerolog.Logger
}

// NewLoop constructs a Loop.
func NewLoop(logger zerolog.Logger) *Loop {
	return &Loop{logger: logger.With().Str("component", "loop").Logger()}
}

// Run blocks, invoking the tick function until ctx is cancelled. Tick errors
// are logged and the loop keeps going; only cancellation stops it.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, err := tick(ctx, time.Now())
		if err != nil {
			l.logger.Error().Err(err).Msg("tick execution failed")
		}
		if delay <= 0 {
			delay = time.Minute
		}

		l.logger.Debug().Dur("sleep", delay).Msg("waiting for next tick")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
