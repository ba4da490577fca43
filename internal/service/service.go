package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renal-risk-stream/internal/alerting"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/storage"
	"renal-risk-stream/internal/stream"
)

// DefaultQueueSize bounds the number of snapshots waiting for fan-out.
const DefaultQueueSize = 256

// SnapshotCache stores the latest snapshot of each stream.
type SnapshotCache interface {
	Put(ctx context.Context, snap stream.Snapshot) error
}

// Alerter turns qualifying assessments into notifications.
type Alerter interface {
	Offer(ctx context.Context, note alerting.Notification) (bool, error)
	Forget(id uuid.UUID)
}

// job is either a snapshot to deliver or the end of a stream.
type job struct {
	snap   stream.Snapshot
	closed bool
}

// Options tune the dispatcher.
type Options struct {
	QueueSize int
	// Timeout bounds each collaborator call.
	Timeout time.Duration
}

// Dispatcher fans refreshed snapshots out to persistence, cache and
// alerting on its own goroutine. Any collaborator may be nil.
type Dispatcher struct {
	queue   chan job
	store   storage.FusionLogStore
	cache   SnapshotCache
	alerts  Alerter
	timeout time.Duration
	logger  zerolog.Logger

	dropped atomic.Uint64

	mu   sync.Mutex
	prev map[uuid.UUID]map[risk.Signal]float64
}

// New constructs a Dispatcher.
func New(opts Options, store storage.FusionLogStore, cache SnapshotCache, alerts Alerter, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:   make(chan job, opts.QueueSize),
		store:   store,
		cache:   cache,
		alerts:  alerts,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		prev:    make(map[uuid.UUID]map[risk.Signal]float64),
	}
}

// Observe enqueues snap without blocking. Snapshots arriving while the
// queue is full are dropped.
func (d *Dispatcher) Observe(snap stream.Snapshot) {
	select {
	case d.queue <- job{snap: snap}:
	default:
		n := d.dropped.Add(1)
		d.logger.Warn().Str("stream_id", snap.StreamID.String()).
			Uint64("seq", snap.Seq).
			Uint64("dropped_total", n).
			Msg("dispatch queue full, snapshot dropped")
	}
}

// StreamClosed releases per-stream state once snapshots already queued for
// the stream have been delivered.
func (d *Dispatcher) StreamClosed(id uuid.UUID) {
	select {
	case d.queue <- job{snap: stream.Snapshot{StreamID: id}, closed: true}:
	default:
		d.release(id)
	}
}

func (d *Dispatcher) release(id uuid.UUID) {
	d.mu.Lock()
	delete(d.prev, id)
	d.mu.Unlock()
	if d.alerts != nil {
		d.alerts.Forget(id)
	}
}

// Dropped reports how many snapshots were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("queue_size", cap(d.queue)).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Int("pending", len(d.queue)).Msg("dispatcher stopped")
			return ctx.Err()
		case j := <-d.queue:
			if j.closed {
				d.release(j.snap.StreamID)
				continue
			}
			d.Process(ctx, j.snap)
		}
	}
}

// Process delivers one snapshot to every collaborator. Failures are logged
// and never propagate to the stream.
func (d *Dispatcher) Process(ctx context.Context, snap stream.Snapshot) {
	logger := d.logger.With().Str("stream_id", snap.StreamID.String()).Uint64("seq", snap.Seq).Logger()
	trends := d.trends(snap)

	if d.store != nil {
		log := storage.NewFusionLog(snap.StreamID, snap.Fusion, snap.Readings(), trends, snap.GeneratedAt)
		if err := d.call(ctx, func(ctx context.Context) error { return d.store.InsertFusionLog(ctx, log) }); err != nil {
			logger.Error().Err(err).Msg("failed to persist fusion log")
		}
	}

	if d.cache != nil {
		if err := d.call(ctx, func(ctx context.Context) error { return d.cache.Put(ctx, snap) }); err != nil {
			logger.Error().Err(err).Msg("failed to cache snapshot")
		}
	}

	if d.alerts != nil {
		note := NotificationFor(snap)
		var sent bool
		err := d.call(ctx, func(ctx context.Context) error {
			var err error
			sent, err = d.alerts.Offer(ctx, note)
			return err
		})
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("failed to dispatch alert")
		case sent:
			logger.Info().Stringer("final_risk", snap.Fusion.FinalRisk).Msg("alert dispatched")
		}
	}

	logger.Debug().Stringer("final_risk", snap.Fusion.FinalRisk).Msg("snapshot dispatched")
}

// NotificationFor builds the alert payload for a snapshot.
func NotificationFor(snap stream.Snapshot) alerting.Notification {
	return alerting.Notification{
		StreamID:      snap.StreamID,
		At:            snap.GeneratedAt,
		FinalRisk:     snap.Fusion.FinalRisk,
		Previous:      risk.Green,
		Score:         snap.Fusion.Score,
		Strategy:      snap.Fusion.Strategy,
		Summary:       snap.Fusion.Summary,
		UrgentActions: snap.Fusion.UrgentActions,
		Readings:      snap.Readings(),
	}
}

func (d *Dispatcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return fn(ctx)
}

func (d *Dispatcher) trends(snap stream.Snapshot) map[risk.Signal]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.prev[snap.StreamID]
	if !ok {
		last = make(map[risk.Signal]float64, 4)
		d.prev[snap.StreamID] = last
	}
	trends := make(map[risk.Signal]string, 4)
	for _, r := range snap.Readings() {
		if prev, seen := last[r.Signal]; seen {
			trends[r.Signal] = storage.Trend(prev, r.Value)
		}
		last[r.Signal] = r.Value
	}
	return trends
}

var (
	_ stream.Observer      = (*Dispatcher)(nil)
	_ stream.CloseObserver = (*Dispatcher)(nil)
)
