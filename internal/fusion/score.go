package fusion

import (
	"github.com/shopspring/decimal"

	"renal-risk-stream/internal/risk"
)

// Weights reflect relative clinical importance. They intentionally do not
// sum to one: the raw weighted sum is the score.
var (
	weightHeartRate = decimal.RequireFromString("0.30")
	weightFluid     = decimal.RequireFromString("0.22")
	weightUrea      = decimal.RequireFromString("0.15")
	weightSpO2      = decimal.RequireFromString("0.12")
)

// Score thresholds, checked from most to least severe.
var (
	ThresholdRed    = decimal.RequireFromString("3.00")
	ThresholdOrange = decimal.RequireFromString("2.25")
	ThresholdYellow = decimal.RequireFromString("1.50")
)

// ScoreBased fuses a weighted sum of all four severities.
type ScoreBased struct{}

// NewScoreBased returns the weighted-score strategy.
func NewScoreBased() ScoreBased {
	return ScoreBased{}
}

func (ScoreBased) Name() string { return StrategyScore }

// Fuse computes the score and maps it to a level.
func (ScoreBased) Fuse(in Inputs) Result {
	score := Score(in)
	res := describe(levelFromScore(score), in, StrategyScore)
	f := score.InexactFloat64()
	res.Score = &f
	return res
}

// Score returns the exact weighted severity sum.
func Score(in Inputs) decimal.Decimal {
	return severity(in.HeartRate).Mul(weightHeartRate).
		Add(severity(in.Fluid).Mul(weightFluid)).
		Add(severity(in.Urea).Mul(weightUrea)).
		Add(severity(in.SpO2).Mul(weightSpO2))
}

func levelFromScore(score decimal.Decimal) risk.Level {
	switch {
	case score.GreaterThanOrEqual(ThresholdRed):
		return risk.Red
	case score.GreaterThanOrEqual(ThresholdOrange):
		return risk.Orange
	case score.GreaterThanOrEqual(ThresholdYellow):
		return risk.Yellow
	default:
		return risk.Green
	}
}

func severity(l risk.Level) decimal.Decimal {
	if !l.Valid() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(l.Severity()))
}
