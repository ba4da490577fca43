package simulator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func TestInterpolateExactAtKeyframes(t *testing.T) {
	frames := DefaultScenario()
	for _, k := range frames {
		v := Interpolate(frames, k.Offset)
		assert.InDelta(t, k.Fluid, v.Fluid, 1e-9, k.Label)
		assert.InDelta(t, k.Urea, v.Urea, 1e-9, k.Label)
		assert.InDelta(t, k.HeartRate, v.HeartRate, 1e-9, k.Label)
		assert.InDelta(t, k.SpO2, v.SpO2, 1e-9, k.Label)
	}
}

func TestInterpolateMidpoint(t *testing.T) {
	frames := []Keyframe{
		{Offset: 0, Fluid: 0.40, Urea: 20, HeartRate: 60, SpO2: 100},
		{Offset: 10 * time.Second, Fluid: 0.50, Urea: 40, HeartRate: 120, SpO2: 90},
	}
	v := Interpolate(frames, 5*time.Second)
	assert.InDelta(t, 0.45, v.Fluid, 1e-9)
	assert.InDelta(t, 30, v.Urea, 1e-9)
	assert.InDelta(t, 90, v.HeartRate, 1e-9)
	assert.InDelta(t, 95, v.SpO2, 1e-9)

	v = Interpolate(frames, 2500*time.Millisecond)
	assert.InDelta(t, 25, v.Urea, 1e-9)
}

func TestInterpolateClampsAfterScenario(t *testing.T) {
	frames := DefaultScenario()
	last := frames[len(frames)-1]
	end := Duration(frames)

	for _, after := range []time.Duration{end, end + time.Millisecond, end + time.Hour, 100 * end} {
		v := Interpolate(frames, after)
		assert.Equal(t, last.vitals(), v)
	}
}

func TestInterpolateClampsBeforeStart(t *testing.T) {
	frames := DefaultScenario()
	assert.Equal(t, frames[0].vitals(), Interpolate(frames, -time.Second))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(DefaultScenario()))
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate([]Keyframe{{Offset: time.Second}}))
	assert.Error(t, Validate([]Keyframe{{Offset: 0}, {Offset: 0}}))
	assert.Error(t, Validate([]Keyframe{{Offset: 0}, {Offset: 2 * time.Second}, {Offset: time.Second}}))
}

func TestSamplePhaseAngleFromSource(t *testing.T) {
	sim, err := New(Options{PhaseAngleMin: 4, PhaseAngleMax: 8, Source: fixedSource(0.25)})
	require.NoError(t, err)

	s := sim.Sample(90 * time.Second)
	assert.InDelta(t, 5.0, s.PhaseAngle, 1e-9)
	assert.Equal(t, 90*time.Second, s.Elapsed)
	assert.Equal(t, Interpolate(DefaultScenario(), 90*time.Second), s.Vitals)
}

func TestSamplePhaseAngleStaysInRange(t *testing.T) {
	sim, err := New(Options{Source: NewSource(42)})
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		pa := sim.Sample(time.Duration(i) * time.Second).PhaseAngle
		assert.GreaterOrEqual(t, pa, DefaultPhaseAngleMin)
		assert.Less(t, pa, DefaultPhaseAngleMax)
	}
}

func TestSeededSourcesAreReproducible(t *testing.T) {
	a, err := New(Options{Source: NewSource(7)})
	require.NoError(t, err)
	b, err := New(Options{Source: NewSource(7)})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Sample(0), b.Sample(0))
	}
}

func TestNewRejectsInvertedRange(t *testing.T) {
	_, err := New(Options{PhaseAngleMin: 8, PhaseAngleMax: 4})
	assert.Error(t, err)
}

func TestKeyframeJSONUsesMilliseconds(t *testing.T) {
	b, err := json.Marshal(Keyframe{Offset: 1500 * time.Millisecond, Label: "x", Urea: 30})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, float64(1500), decoded["offset_ms"])
	assert.Equal(t, "x", decoded["label"])
	assert.NotContains(t, decoded, "Offset")
}
