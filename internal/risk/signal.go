package risk

import (
	"fmt"
	"math"
	"strings"
)

// Signal identifies one monitored physiological parameter.
type Signal string

const (
	SignalUrea      Signal = "UREA"
	SignalFluid     Signal = "FLUID"
	SignalHeartRate Signal = "HEART_RATE"
	SignalSpO2      Signal = "SPO2"
)

// Sensor types group signals by the device that produces them.
const (
	SensorBiochemPatch   = "BIOCHEM_PATCH"
	SensorThoracicFusion = "THORACIC_FUSION"
	SensorSmartRing      = "SMART_RING"
)

// Signals lists the monitored signals in display order.
func Signals() []Signal {
	return []Signal{SignalUrea, SignalFluid, SignalHeartRate, SignalSpO2}
}

// Unit returns the fixed measurement unit for the signal.
func (s Signal) Unit() string {
	switch s {
	case SignalUrea:
		return "mg/dL"
	case SignalFluid:
		return "ECW/TBW"
	case SignalHeartRate:
		return "bpm"
	case SignalSpO2:
		return "%"
	default:
		return ""
	}
}

// Sensor returns the device family reporting the signal.
func (s Signal) Sensor() string {
	switch s {
	case SignalUrea:
		return SensorBiochemPatch
	case SignalFluid:
		return SensorThoracicFusion
	default:
		return SensorSmartRing
	}
}

// precision is the number of decimals kept when a raw value becomes a reading.
func (s Signal) precision() int {
	switch s {
	case SignalUrea:
		return 1
	case SignalFluid:
		return 2
	default:
		return 0
	}
}

// ParseSignal parses a signal name case-insensitively.
func ParseSignal(v string) (Signal, error) {
	name := Signal(strings.ToUpper(strings.TrimSpace(v)))
	for _, s := range Signals() {
		if s == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown signal %q", v)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
