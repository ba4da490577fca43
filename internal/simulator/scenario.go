package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Keyframe is a scripted vital-sign vector anchored at an offset from stream start.
type Keyframe struct {
	Offset    time.Duration `json:"-"`
	Label     string        `json:"label"`
	Fluid     float64       `json:"fluid"`
	Urea      float64       `json:"urea"`
	HeartRate float64       `json:"heart_rate"`
	SpO2      float64       `json:"spo2"`
}

// MarshalJSON reports the offset in milliseconds.
func (k Keyframe) MarshalJSON() ([]byte, error) {
	type plain Keyframe
	return json.Marshal(struct {
		OffsetMS int64 `json:"offset_ms"`
		plain
	}{k.Offset.Milliseconds(), plain(k)})
}

// Vitals is one interpolated value per scripted signal.
type Vitals struct {
	Fluid     float64 `json:"fluid"`
	Urea      float64 `json:"urea"`
	HeartRate float64 `json:"heart_rate"`
	SpO2      float64 `json:"spo2"`
}

// ScenarioHours is the clinical span scripted by DefaultScenario.
const ScenarioHours = 14

// DefaultDuration is the wall-clock length DefaultScenario is compressed into.
const DefaultDuration = 5 * time.Minute

var defaultScenario = []Keyframe{
	{Offset: 0, Label: "baseline", Fluid: 0.38, Urea: 32.5, HeartRate: 72, SpO2: 98},
	{Offset: 60 * time.Second, Label: "early retention (h2)", Fluid: 0.41, Urea: 55, HeartRate: 88, SpO2: 97},
	{Offset: 120 * time.Second, Label: "rising urea (h5)", Fluid: 0.44, Urea: 88, HeartRate: 108, SpO2: 93},
	{Offset: 180 * time.Second, Label: "fluid overload (h8)", Fluid: 0.47, Urea: 122, HeartRate: 128, SpO2: 90},
	{Offset: 240 * time.Second, Label: "decompensation (h11)", Fluid: 0.50, Urea: 155, HeartRate: 146, SpO2: 86},
	{Offset: DefaultDuration, Label: "critical (h14)", Fluid: 0.52, Urea: 170, HeartRate: 152, SpO2: 83},
}

// DefaultScenario returns a copy of the built-in deterioration script.
func DefaultScenario() []Keyframe {
	out := make([]Keyframe, len(defaultScenario))
	copy(out, defaultScenario)
	return out
}

// Validate checks frames are non-empty, start at zero and strictly ascend.
func Validate(frames []Keyframe) error {
	if len(frames) == 0 {
		return errors.New("scenario has no keyframes")
	}
	if frames[0].Offset != 0 {
		return fmt.Errorf("first keyframe must start at 0, got %s", frames[0].Offset)
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Offset <= frames[i-1].Offset {
			return fmt.Errorf("keyframe %d offset %s does not follow %s", i, frames[i].Offset, frames[i-1].Offset)
		}
	}
	return nil
}

// Duration returns the offset of the final keyframe.
func Duration(frames []Keyframe) time.Duration {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].Offset
}

// Interpolate linearly interpolates every field between the keyframes that
// bracket elapsed. Before the first frame it returns the first frame; after
// the last frame it holds the last frame indefinitely.
func Interpolate(frames []Keyframe, elapsed time.Duration) Vitals {
	if len(frames) == 0 {
		return Vitals{}
	}
	if elapsed <= frames[0].Offset {
		return frames[0].vitals()
	}

	last := frames[len(frames)-1]
	if elapsed >= last.Offset {
		return last.vitals()
	}

	for i := 0; i < len(frames)-1; i++ {
		start, end := frames[i], frames[i+1]
		if elapsed < start.Offset || elapsed > end.Offset {
			continue
		}
		progress := 1.0
		if span := end.Offset - start.Offset; span > 0 {
			progress = float64(elapsed-start.Offset) / float64(span)
		}
		return Vitals{
			Fluid:     lerp(start.Fluid, end.Fluid, progress),
			Urea:      lerp(start.Urea, end.Urea, progress),
			HeartRate: lerp(start.HeartRate, end.HeartRate, progress),
			SpO2:      lerp(start.SpO2, end.SpO2, progress),
		}
	}
	return last.vitals()
}

func (k Keyframe) vitals() Vitals {
	return Vitals{Fluid: k.Fluid, Urea: k.Urea, HeartRate: k.HeartRate, SpO2: k.SpO2}
}

func lerp(a, b, progress float64) float64 {
	return a + (b-a)*progress
}
