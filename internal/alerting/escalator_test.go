package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renal-risk-stream/internal/risk"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.notes = append(r.notes, note)
	return nil
}

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time         { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestEscalatorThresholdAndEscalation(t *testing.T) {
	rec := &recordingNotifier{}
	clock := &manualClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	esc := NewEscalator(rec, risk.Orange, 30*time.Minute, clock.Now)
	ctx := context.Background()
	id := uuid.New()

	sent, err := esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Yellow})
	require.NoError(t, err)
	assert.False(t, sent, "below minimum")

	sent, err = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Orange, Previous: risk.Yellow})
	require.NoError(t, err)
	assert.True(t, sent, "first crossing")

	clock.Advance(time.Minute)
	sent, _ = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Orange})
	assert.False(t, sent, "same level within cooldown")

	sent, _ = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Red})
	assert.True(t, sent, "escalation bypasses cooldown")

	require.Len(t, rec.notes, 2)
	assert.Equal(t, risk.Yellow, rec.notes[0].Previous)
	assert.Equal(t, risk.Orange, rec.notes[1].Previous)
}

func TestEscalatorCooldownRepeats(t *testing.T) {
	rec := &recordingNotifier{}
	clock := &manualClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	esc := NewEscalator(rec, risk.Orange, 10*time.Minute, clock.Now)
	id := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := esc.Offer(context.Background(), Notification{StreamID: id, FinalRisk: risk.Red})
		require.NoError(t, err)
		clock.Advance(3 * time.Minute)
	}
	// alerts at 0 and 12 minutes
	assert.Len(t, rec.notes, 2)
}

func TestEscalatorRearmsBelowMinimum(t *testing.T) {
	rec := &recordingNotifier{}
	esc := NewEscalator(rec, risk.Orange, time.Hour, nil)
	id := uuid.New()
	ctx := context.Background()

	_, _ = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Orange})
	_, _ = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Green})
	sent, _ := esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Orange})
	assert.True(t, sent)
	assert.Len(t, rec.notes, 2)
}

func TestEscalatorStreamsIndependent(t *testing.T) {
	rec := &recordingNotifier{}
	esc := NewEscalator(rec, risk.Orange, time.Hour, nil)
	ctx := context.Background()

	a, _ := esc.Offer(ctx, Notification{StreamID: uuid.New(), FinalRisk: risk.Red})
	b, _ := esc.Offer(ctx, Notification{StreamID: uuid.New(), FinalRisk: risk.Red})
	assert.True(t, a)
	assert.True(t, b)
}

func TestEscalatorRetriesAfterFailure(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("down")}
	esc := NewEscalator(rec, risk.Orange, time.Hour, nil)
	id := uuid.New()
	ctx := context.Background()

	sent, err := esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Red})
	assert.Error(t, err)
	assert.False(t, sent)

	rec.err = nil
	sent, err = esc.Offer(ctx, Notification{StreamID: id, FinalRisk: risk.Red})
	require.NoError(t, err)
	assert.True(t, sent)
}
