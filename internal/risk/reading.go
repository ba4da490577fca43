package risk

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidMeasurement indicates a raw value no classification band can
// meaningfully describe, such as NaN.
var ErrInvalidMeasurement = errors.New("risk: invalid measurement")

// Reading is one classified measurement.
type Reading struct {
	Signal      Signal    `json:"signal"`
	Sensor      string    `json:"sensor"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	PhaseAngle  *float64  `json:"phase_angle,omitempty"`
	Risk        Level     `json:"risk"`
	Badge       string    `json:"badge"`
	Explanation string    `json:"explanation"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate rejects values that are not finite numbers.
func Validate(s Signal, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s value %v", ErrInvalidMeasurement, s, v)
	}
	return nil
}

func explain(s Signal, value, phaseAngle float64, level Level) string {
	switch s {
	case SignalUrea:
		return fmt.Sprintf("Urea %.1f mg/dL is in the %s range", value, level)
	case SignalFluid:
		return fmt.Sprintf("ECW/TBW %.2f with Phase Angle %.1f indicates %s", value, phaseAngle, level)
	case SignalHeartRate:
		return fmt.Sprintf("Heart rate %.0f bpm is %s", value, level)
	case SignalSpO2:
		return fmt.Sprintf("SpO2 %.0f%% is %s", value, level)
	default:
		return fmt.Sprintf("%s %v is %s", s, value, level)
	}
}
