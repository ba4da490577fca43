package stream

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/simulator"
)

// Default refresh cadences per signal group.
const (
	DefaultFastRefresh = 3 * time.Second
	DefaultSlowRefresh = 15 * time.Second
)

// Cadence is the minimum time between refreshes of each signal group.
// Fast covers heart rate and SpO2; Slow covers urea and fluid.
type Cadence struct {
	Fast time.Duration
	Slow time.Duration
}

// DefaultCadence returns the 3 s / 15 s refresh cadence.
func DefaultCadence() Cadence {
	return Cadence{Fast: DefaultFastRefresh, Slow: DefaultSlowRefresh}
}

// Snapshot is the full state pushed to a subscriber on one tick.
type Snapshot struct {
	StreamID    uuid.UUID     `json:"stream_id"`
	Seq         uint64        `json:"seq"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	GeneratedAt time.Time     `json:"generated_at"`
	Urea        risk.Reading  `json:"urea"`
	Fluid       risk.Reading  `json:"fluid"`
	HeartRate   risk.Reading  `json:"heart_rate"`
	SpO2        risk.Reading  `json:"spo2"`
	Fusion      fusion.Result `json:"fusion"`
}

// Readings returns the four readings in signal order.
func (s Snapshot) Readings() []risk.Reading {
	return []risk.Reading{s.Urea, s.Fluid, s.HeartRate, s.SpO2}
}

// Session holds the state of one subscriber connection. It is owned by a
// single goroutine and is not safe for concurrent use.
type Session struct {
	id       uuid.UUID
	start    time.Time
	sim      *simulator.Simulator
	profile  risk.Profile
	strategy fusion.Strategy
	cadence  Cadence

	seq      uint64
	elapsed  time.Duration
	lastFast time.Duration
	lastSlow time.Duration

	urea      risk.Reading
	fluid     risk.Reading
	heartRate risk.Reading
	spo2      risk.Reading
	result    fusion.Result
}

// NewSession builds a session whose current snapshot is the elapsed-zero state.
func NewSession(id uuid.UUID, start time.Time, sim *simulator.Simulator, profile risk.Profile, strategy fusion.Strategy, cadence Cadence) (*Session, error) {
	s := &Session{
		id:       id,
		start:    start,
		sim:      sim,
		profile:  profile,
		strategy: strategy,
		cadence:  cadence,
	}

	sample := sim.Sample(0)
	if err := s.refreshFast(sample); err != nil {
		return nil, err
	}
	if err := s.refreshSlow(sample); err != nil {
		return nil, err
	}
	s.recompute()
	return s, nil
}

// ID returns the stream identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start returns the wall-clock time the session began.
func (s *Session) Start() time.Time {
	return s.start
}

// Advance moves the session to elapsed. Each signal group refreshes only if
// its own cadence has passed since its last refresh; fusion is recomputed
// only when at least one group refreshed. It returns the current snapshot and
// whether anything refreshed.
func (s *Session) Advance(elapsed time.Duration) (Snapshot, bool, error) {
	if elapsed < s.elapsed {
		elapsed = s.elapsed
	}
	s.elapsed = elapsed
	s.seq++

	sample := s.sim.Sample(elapsed)
	refreshed := false

	if elapsed-s.lastFast >= s.cadence.Fast {
		if err := s.refreshFast(sample); err != nil {
			return s.Snapshot(), false, err
		}
		s.lastFast = elapsed
		refreshed = true
	}

	if elapsed-s.lastSlow >= s.cadence.Slow {
		if err := s.refreshSlow(sample); err != nil {
			if refreshed {
				s.recompute()
			}
			return s.Snapshot(), refreshed, err
		}
		s.lastSlow = elapsed
		refreshed = true
	}

	if refreshed {
		s.recompute()
	}
	return s.Snapshot(), refreshed, nil
}

// Snapshot returns the current state without advancing.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		StreamID:    s.id,
		Seq:         s.seq,
		ElapsedMS:   s.elapsed.Milliseconds(),
		GeneratedAt: s.start.Add(s.elapsed).UTC(),
		Urea:        s.urea,
		Fluid:       s.fluid,
		HeartRate:   s.heartRate,
		SpO2:        s.spo2,
		Fusion:      s.result,
	}
}

func (s *Session) refreshFast(sample simulator.Sample) error {
	at := s.start.Add(sample.Elapsed)
	hr, err := s.profile.Read(risk.SignalHeartRate, sample.Vitals.HeartRate, 0, at)
	if err != nil {
		return fmt.Errorf("read heart rate: %w", err)
	}
	spo2, err := s.profile.Read(risk.SignalSpO2, sample.Vitals.SpO2, 0, at)
	if err != nil {
		return fmt.Errorf("read spo2: %w", err)
	}
	s.heartRate, s.spo2 = hr, spo2
	return nil
}

func (s *Session) refreshSlow(sample simulator.Sample) error {
	at := s.start.Add(sample.Elapsed)
	urea, err := s.profile.Read(risk.SignalUrea, sample.Vitals.Urea, 0, at)
	if err != nil {
		return fmt.Errorf("read urea: %w", err)
	}
	fluid, err := s.profile.Read(risk.SignalFluid, sample.Vitals.Fluid, sample.PhaseAngle, at)
	if err != nil {
		return fmt.Errorf("read fluid: %w", err)
	}
	s.urea, s.fluid = urea, fluid
	return nil
}

func (s *Session) recompute() {
	s.result = s.strategy.Fuse(fusion.Inputs{
		Urea:      s.urea.Risk,
		Fluid:     s.fluid.Risk,
		HeartRate: s.heartRate.Risk,
		SpO2:      s.spo2.Risk,
	})
}
