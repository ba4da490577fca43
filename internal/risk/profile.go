package risk

import (
	"fmt"
	"strings"
	"time"
)

// Profile names accepted by ProfileByName.
const (
	ProfileFiveLevel = "five_level"
	ProfileFourLevel = "four_level"
)

// Profile is a versioned classification rule-set.
type Profile interface {
	Name() string
	Classify(s Signal, value, phaseAngle float64) Level
	Read(s Signal, value, phaseAngle float64, at time.Time) (Reading, error)
}

// FiveLevel applies the Green/Blue/Yellow/Orange/Red bands as written.
var FiveLevel Profile = fiveLevel{}

// FourLevel applies the same bands but reports Blue as Green.
var FourLevel Profile = fourLevel{}

// ProfileByName resolves a configured profile name.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProfileFiveLevel, "five", "5":
		return FiveLevel, nil
	case ProfileFourLevel, "four", "4", "":
		return FourLevel, nil
	default:
		return nil, fmt.Errorf("unknown classification profile %q", name)
	}
}

type fiveLevel struct{}

func (fiveLevel) Name() string { return ProfileFiveLevel }

func (fiveLevel) Classify(s Signal, value, phaseAngle float64) Level {
	switch s {
	case SignalUrea:
		return ClassifyUrea(value)
	case SignalFluid:
		return ClassifyFluid(value, phaseAngle)
	case SignalHeartRate:
		return ClassifyHeartRate(value)
	case SignalSpO2:
		return ClassifySpO2(value)
	default:
		return Green
	}
}

func (p fiveLevel) Read(s Signal, value, phaseAngle float64, at time.Time) (Reading, error) {
	return read(p, s, value, phaseAngle, at)
}

type fourLevel struct{}

func (fourLevel) Name() string { return ProfileFourLevel }

func (fourLevel) Classify(s Signal, value, phaseAngle float64) Level {
	l := fiveLevel{}.Classify(s, value, phaseAngle)
	if l == Blue {
		return Green
	}
	return l
}

func (p fourLevel) Read(s Signal, value, phaseAngle float64, at time.Time) (Reading, error) {
	return read(p, s, value, phaseAngle, at)
}

// read rounds the raw value to the signal's display precision, validates it
// and classifies the rounded value so the reading is self-consistent.
func read(p Profile, s Signal, value, phaseAngle float64, at time.Time) (Reading, error) {
	if err := Validate(s, value); err != nil {
		return Reading{}, err
	}
	v := round(value, s.precision())

	r := Reading{
		Signal:    s,
		Sensor:    s.Sensor(),
		Value:     v,
		Unit:      s.Unit(),
		Timestamp: at.UTC(),
	}

	var pa float64
	if s == SignalFluid {
		if err := Validate("PHASE_ANGLE", phaseAngle); err != nil {
			return Reading{}, err
		}
		pa = round(phaseAngle, 1)
		r.PhaseAngle = &pa
	}

	r.Risk = p.Classify(s, v, pa)
	r.Badge = r.Risk.Badge()
	r.Explanation = explain(s, v, pa, r.Risk)
	return r, nil
}
