// Package stream runs the per-connection publish loop for the live risk feed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/scheduler"
	"renal-risk-stream/internal/simulator"
)

// DefaultTickInterval is how often a snapshot is pushed to each subscriber.
const DefaultTickInterval = time.Second

// State is the lifecycle phase of one connection.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink delivers snapshots to one subscriber.
type Sink interface {
	Send(ctx context.Context, snap Snapshot) error
}

// Observer receives snapshots whose readings refreshed. Observe must not block.
type Observer interface {
	Observe(snap Snapshot)
}

// CloseObserver is implemented by observers that keep per-stream state and
// want to release it when a stream ends.
type CloseObserver interface {
	StreamClosed(id uuid.UUID)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(snap Snapshot)

// Observe calls f(snap).
func (f ObserverFunc) Observe(snap Snapshot) { f(snap) }

// Options configure a Publisher.
type Options struct {
	TickInterval time.Duration
	Cadence      Cadence
	Profile      risk.Profile
	Strategy     fusion.Strategy
	// NewSimulator builds the simulator owned by one connection.
	NewSimulator func() (*simulator.Simulator, error)
	// Now overrides the wall clock.
	Now func() time.Time
}

// Publisher serves the live feed. Each call to Serve owns an isolated
// session; Publisher itself holds no per-connection state.
type Publisher struct {
	opts     Options
	observer Observer
	logger   zerolog.Logger
}

// NewPublisher fills defaults and constructs a Publisher. observer may be nil.
func NewPublisher(opts Options, observer Observer, logger zerolog.Logger) *Publisher {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Cadence.Fast <= 0 {
		opts.Cadence.Fast = DefaultFastRefresh
	}
	if opts.Cadence.Slow <= 0 {
		opts.Cadence.Slow = DefaultSlowRefresh
	}
	if opts.Profile == nil {
		opts.Profile = risk.FourLevel
	}
	if opts.Strategy == nil {
		opts.Strategy = fusion.NewScoreBased()
	}
	if opts.NewSimulator == nil {
		opts.NewSimulator = func() (*simulator.Simulator, error) {
			return simulator.New(simulator.Options{})
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		opts:     opts,
		observer: observer,
		logger:   logger.With().Str("component", "publisher").Logger(),
	}
}

// Options returns the effective options.
func (p *Publisher) Options() Options {
	return p.opts
}

// WithClassification returns a Publisher sharing p's observer and options
// but classifying and fusing with the given profile and strategy. Nil
// arguments keep p's choice.
func (p *Publisher) WithClassification(profile risk.Profile, strategy fusion.Strategy) *Publisher {
	cp := *p
	if profile != nil {
		cp.opts.Profile = profile
	}
	if strategy != nil {
		cp.opts.Strategy = strategy
	}
	return &cp
}

// NewSession starts a session at the current time.
func (p *Publisher) NewSession(id uuid.UUID) (*Session, error) {
	sim, err := p.opts.NewSimulator()
	if err != nil {
		return nil, fmt.Errorf("build simulator: %w", err)
	}
	return NewSession(id, p.opts.Now(), sim, p.opts.Profile, p.opts.Strategy, p.opts.Cadence)
}

// Serve streams snapshots to sink until ctx is cancelled or a send fails.
// The elapsed-zero snapshot is delivered before the first tick. Subscriber
// departure is normal lifecycle and yields a nil error.
func (p *Publisher) Serve(ctx context.Context, id uuid.UUID, sink Sink) error {
	c := &conn{id: id, sink: sink, logger: p.logger.With().Str("stream_id", id.String()).Logger()}
	defer func() {
		c.close()
		if co, ok := p.observer.(CloseObserver); ok {
			co.StreamClosed(id)
		}
	}()

	sess, err := p.NewSession(id)
	if err != nil {
		return err
	}

	initial := sess.Snapshot()
	if err := sink.Send(ctx, initial); err != nil {
		return fmt.Errorf("send initial snapshot: %w", err)
	}
	p.observe(initial)
	c.setState(StateStreaming)
	c.logger.Info().Str("profile", p.opts.Profile.Name()).Str("strategy", p.opts.Strategy.Name()).Msg("stream opened")

	sched := scheduler.New(scheduler.Options{Interval: p.opts.TickInterval, Now: p.opts.Now}, c.logger)
	err = sched.Run(ctx, func(ctx context.Context, now time.Time) error {
		snap, refreshed, err := sess.Advance(now.Sub(sess.Start()))
		if err != nil {
			return err
		}
		if refreshed {
			p.observe(snap)
		}
		if ctx.Err() != nil {
			return scheduler.Stop(ctx.Err())
		}
		if err := sink.Send(ctx, snap); err != nil {
			return scheduler.Stop(fmt.Errorf("send snapshot: %w", err))
		}
		return nil
	})

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (p *Publisher) observe(snap Snapshot) {
	if p.observer != nil {
		p.observer.Observe(snap)
	}
}

// conn tracks lifecycle for one Serve call.
type conn struct {
	id     uuid.UUID
	sink   Sink
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("stream state changed")
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		if closer, ok := c.sink.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				c.logger.Debug().Err(err).Msg("close sink")
			}
		}
		c.logger.Info().Msg("stream closed")
	})
}
