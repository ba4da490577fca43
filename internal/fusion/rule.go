package fusion

import "renal-risk-stream/internal/risk"

// RuleBased escalates on any critical signal or enough correlated warnings.
// It considers urea, fluid and a cardio-oxygenation proxy taken as the more
// severe of heart rate and SpO2.
type RuleBased struct{}

func (RuleBased) Name() string { return StrategyRule }

// Fuse applies the escalation rules in order.
func (RuleBased) Fuse(in Inputs) Result {
	return describe(FuseRules(in.Urea, in.Fluid, risk.Max(in.HeartRate, in.SpO2)), in, StrategyRule)
}

// FuseRules fuses three levels.
func FuseRules(urea, fluid, proxy risk.Level) risk.Level {
	levels := []risk.Level{urea, fluid, proxy}

	var red, orange, yellow, blue, green int
	for _, l := range levels {
		switch l {
		case risk.Red:
			red++
		case risk.Orange:
			orange++
		case risk.Yellow:
			yellow++
		case risk.Blue:
			blue++
		case risk.Green:
			green++
		}
	}

	switch {
	case red > 0:
		return risk.Red
	case orange >= 2:
		return risk.Orange
	case orange >= 1 && yellow >= 1:
		return risk.Orange
	case yellow >= 2:
		return risk.Yellow
	case blue == len(levels):
		return risk.Blue
	case green == len(levels):
		return risk.Green
	default:
		return risk.Max(levels...)
	}
}
