// Package simulator scripts a deterministic patient trajectory for the live feed.
package simulator

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Default phase angle range, in degrees, drawn on every sample.
const (
	DefaultPhaseAngleMin = 5.0
	DefaultPhaseAngleMax = 7.5
)

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

// Options configure a Simulator.
type Options struct {
	Frames        []Keyframe
	PhaseAngleMin float64
	PhaseAngleMax float64
	Source        Source
}

// Sample is the ideal raw measurement vector at one instant.
type Sample struct {
	Elapsed    time.Duration
	Vitals     Vitals
	PhaseAngle float64
}

// Simulator produces samples from a keyframe script. A Simulator is owned by
// a single stream and is not safe for concurrent use.
type Simulator struct {
	frames []Keyframe
	paMin  float64
	paMax  float64
	src    Source
}

// New validates opts and builds a Simulator.
func New(opts Options) (*Simulator, error) {
	frames := opts.Frames
	if frames == nil {
		frames = DefaultScenario()
	}
	if err := Validate(frames); err != nil {
		return nil, err
	}

	paMin, paMax := opts.PhaseAngleMin, opts.PhaseAngleMax
	if paMin == 0 && paMax == 0 {
		paMin, paMax = DefaultPhaseAngleMin, DefaultPhaseAngleMax
	}
	if paMax < paMin {
		return nil, fmt.Errorf("phase angle range [%v, %v] is inverted", paMin, paMax)
	}

	src := opts.Source
	if src == nil {
		src = NewSource(uint64(time.Now().UnixNano()))
	}

	return &Simulator{frames: frames, paMin: paMin, paMax: paMax, src: src}, nil
}

// NewSource returns a seeded PCG source.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Frames returns the keyframes driving the simulator.
func (s *Simulator) Frames() []Keyframe {
	out := make([]Keyframe, len(s.frames))
	copy(out, s.frames)
	return out
}

// Sample returns the interpolated vitals at elapsed plus a fresh phase angle.
// Negative elapsed is clamped to zero.
func (s *Simulator) Sample(elapsed time.Duration) Sample {
	if elapsed < 0 {
		elapsed = 0
	}
	return Sample{
		Elapsed:    elapsed,
		Vitals:     Interpolate(s.frames, elapsed),
		PhaseAngle: s.paMin + (s.paMax-s.paMin)*s.src.Float64(),
	}
}
