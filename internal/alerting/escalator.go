package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"renal-risk-stream/internal/risk"
)

// Escalator decides which assessments become alerts. A stream alerts when
// its fused level reaches the minimum and either rose above the last
// alerted level or the cooldown has passed since the last alert. Dropping
// below the minimum rearms the stream.
type Escalator struct {
	notifier Notifier
	minLevel risk.Level
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[uuid.UUID]alertState
}

type alertState struct {
	level risk.Level
	at    time.Time
}

// NewEscalator wires a notifier with its thresholds. now may be nil.
func NewEscalator(notifier Notifier, minLevel risk.Level, cooldown time.Duration, now func() time.Time) *Escalator {
	if now == nil {
		now = time.Now
	}
	return &Escalator{
		notifier: notifier,
		minLevel: minLevel,
		cooldown: cooldown,
		now:      now,
		last:     make(map[uuid.UUID]alertState),
	}
}

// Offer notifies when note qualifies and reports whether it did.
func (e *Escalator) Offer(ctx context.Context, note Notification) (bool, error) {
	if !e.admit(&note) {
		return false, nil
	}
	if err := e.notifier.Notify(ctx, note); err != nil {
		e.forget(note.StreamID)
		return false, err
	}
	return true, nil
}

// Forget drops the state kept for a stream.
func (e *Escalator) Forget(id uuid.UUID) {
	e.forget(id)
}

func (e *Escalator) admit(note *Notification) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, seen := e.last[note.StreamID]
	if note.FinalRisk.Severity() < e.minLevel.Severity() {
		delete(e.last, note.StreamID)
		return false
	}

	now := e.now()
	if seen && note.FinalRisk.Severity() <= prev.level.Severity() && now.Sub(prev.at) < e.cooldown {
		return false
	}
	if seen {
		note.Previous = prev.level
	}
	e.last[note.StreamID] = alertState{level: note.FinalRisk, at: now}
	return true
}

func (e *Escalator) forget(id uuid.UUID) {
	e.mu.Lock()
	delete(e.last, id)
	e.mu.Unlock()
}
