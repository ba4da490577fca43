package risk

// The classifiers below evaluate closed bands in priority order; the first
// matching band wins. Values outside every documented band fall back to
// Green, except fluid which falls back to Blue.

// ClassifyUrea maps a urea concentration in mg/dL to a level.
func ClassifyUrea(v float64) Level {
	switch {
	case v >= 20 && v <= 40:
		return Green
	case v >= 41 && v <= 80:
		return Blue
	case v >= 81 && v <= 100:
		return Yellow
	case v >= 101 && v <= 150:
		return Orange
	case v > 150:
		return Red
	default:
		return Green
	}
}

// ClassifyFluid maps an ECW/TBW ratio and its companion phase angle to a level.
func ClassifyFluid(ecw, phaseAngle float64) Level {
	switch {
	case phaseAngle < 4.5:
		return Red
	case ecw >= 0.49:
		return Red
	case ecw < 0.39 && phaseAngle > 6.8:
		return Green
	case ecw >= 0.46 && ecw <= 0.48:
		return Orange
	case ecw >= 0.43 && ecw <= 0.45:
		return Yellow
	case ecw >= 0.39 && ecw <= 0.42:
		return Blue
	default:
		return Blue
	}
}

// ClassifyHeartRate maps a heart rate in bpm to a level.
func ClassifyHeartRate(v float64) Level {
	switch {
	case v >= 60 && v <= 100:
		return Green
	case (v >= 101 && v <= 120) || (v >= 41 && v <= 59):
		return Blue
	case v >= 121 && v <= 140:
		return Yellow
	// must precede the broader < 40 band
	case v < 30:
		return Red
	case v > 140 || v < 40:
		return Orange
	default:
		return Green
	}
}

// ClassifySpO2 maps an oxygen saturation percentage to a level.
func ClassifySpO2(v float64) Level {
	switch {
	case v > 95:
		return Green
	case v >= 92 && v <= 94:
		return Blue
	case v >= 90 && v <= 91:
		return Yellow
	case v >= 85 && v < 90:
		return Orange
	case v < 85:
		return Red
	default:
		return Green
	}
}
