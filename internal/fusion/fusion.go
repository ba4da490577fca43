// Package fusion combines per-signal risk levels into one overall assessment.
package fusion

import (
	"fmt"
	"strings"

	"renal-risk-stream/internal/risk"
)

// Strategy names accepted by ByName.
const (
	StrategyRule  = "rule"
	StrategyScore = "score"
)

const longTermAdvice = "Maintain healthy lifestyle and regular checkups."

// Inputs carries the current level of every monitored signal.
type Inputs struct {
	Urea      risk.Level
	Fluid     risk.Level
	HeartRate risk.Level
	SpO2      risk.Level
}

// Result is one fused assessment. It is rebuilt on every recomputation.
type Result struct {
	FinalRisk      risk.Level `json:"final_risk"`
	Badge          string     `json:"badge"`
	Score          *float64   `json:"score,omitempty"`
	Summary        string     `json:"summary"`
	UrgentActions  string     `json:"urgent_actions"`
	LongTermAdvice string     `json:"long_term_advice"`
	Strategy       string     `json:"strategy"`
}

// Strategy fuses per-signal levels. Implementations must be pure.
type Strategy interface {
	Name() string
	Fuse(in Inputs) Result
}

// ByName resolves a configured strategy name.
func ByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyScore, "":
		return NewScoreBased(), nil
	case StrategyRule:
		return RuleBased{}, nil
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", name)
	}
}

// describe fills the templated text fields for the final level.
func describe(final risk.Level, in Inputs, strategy string) Result {
	res := Result{
		FinalRisk:      final,
		Badge:          final.Badge(),
		LongTermAdvice: longTermAdvice,
		Strategy:       strategy,
	}

	switch final {
	case risk.Red:
		res.Summary = "CRITICAL: Immediate attention required due to high risk indicators."
		res.UrgentActions = "Alert medical staff immediately. Check hydration and kidney function."
	case risk.Orange:
		res.Summary = "WARNING: Elevated risk detected."
		res.UrgentActions = "Consult nephrologist. Monitor fluid intake closely."
	case risk.Yellow:
		res.Summary = "CAUTION: Moderate risk indicators present."
		res.UrgentActions = "Schedule follow-up. Review diet and medication."
	default:
		res.Summary = fmt.Sprintf("STABLE: Urea (%s), Fluid (%s), Heart Rate (%s) and SpO2 (%s) show no combined escalation.",
			in.Urea, in.Fluid, in.HeartRate, in.SpO2)
		res.UrgentActions = "Continue monitoring all vitals."
	}
	return res
}
