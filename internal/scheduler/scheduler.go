package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the wall-clock time of the tick.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// Immediate fires the first tick as soon as Run starts.
	Immediate bool
	// Now overrides the clock handed to ticks.
	Now func() time.Time
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as terminal: Run returns it instead of logging and continuing.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// IsStop reports whether err was marked terminal with Stop.
func IsStop(err error) bool {
	var se *stopError
	return errors.As(err, &se)
}

// Scheduler drives periodic execution of a tick function.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled or a tick
// returns an error marked with Stop. Other tick errors are logged and the
// next tick proceeds. The ticker is stopped before Run returns.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.Immediate {
		if err := s.fire(ctx, tick); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// a tick and a cancellation can be ready together
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.fire(ctx, tick); err != nil {
			return err
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc) error {
	now := s.opts.Now()
	if err := tick(ctx, now); err != nil {
		if IsStop(err) {
			return err
		}
		s.logger.Error().Err(err).Time("tick", now).Msg("tick execution failed")
	}
	return nil
}
