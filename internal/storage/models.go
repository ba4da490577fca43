package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
)

// Trend labels stored with each reading.
const (
	TrendStable  = "stable"
	TrendRising  = "rising"
	TrendFalling = "falling"
)

// FusionLog is one persisted fusion assessment with the readings behind it.
type FusionLog struct {
	ID             uuid.UUID
	StreamID       uuid.UUID
	FinalRisk      risk.Level
	Score          *decimal.Decimal
	Strategy       string
	Summary        string
	UrgentActions  string
	LongTermAdvice string
	CreatedAt      time.Time
	Readings       []SensorReading
}

// SensorReading is one classified measurement linked to a fusion log.
type SensorReading struct {
	ID          int64
	FusionLogID uuid.UUID
	StreamID    uuid.UUID
	SensorType  string
	Signal      risk.Signal
	Value       decimal.Decimal
	Unit        string
	PhaseAngle  *decimal.Decimal
	RiskLevel   risk.Level
	Explanation string
	Trend       string
	RecordedAt  time.Time
}

// NewFusionLog maps a fusion result and its readings to a storable record.
// trends is keyed by signal; missing entries are stored as stable.
func NewFusionLog(streamID uuid.UUID, result fusion.Result, readings []risk.Reading, trends map[risk.Signal]string, at time.Time) FusionLog {
	log := FusionLog{
		ID:             uuid.New(),
		StreamID:       streamID,
		FinalRisk:      result.FinalRisk,
		Strategy:       result.Strategy,
		Summary:        result.Summary,
		UrgentActions:  result.UrgentActions,
		LongTermAdvice: result.LongTermAdvice,
		CreatedAt:      at.UTC(),
		Readings:       make([]SensorReading, 0, len(readings)),
	}
	if result.Score != nil {
		score := decimal.NewFromFloat(*result.Score).Round(2)
		log.Score = &score
	}

	for _, r := range readings {
		rec := SensorReading{
			FusionLogID: log.ID,
			StreamID:    streamID,
			SensorType:  r.Sensor,
			Signal:      r.Signal,
			Value:       decimal.NewFromFloat(r.Value),
			Unit:        r.Unit,
			RiskLevel:   r.Risk,
			Explanation: r.Explanation,
			Trend:       TrendStable,
			RecordedAt:  r.Timestamp.UTC(),
		}
		if t, ok := trends[r.Signal]; ok && t != "" {
			rec.Trend = t
		}
		if r.PhaseAngle != nil {
			pa := decimal.NewFromFloat(*r.PhaseAngle)
			rec.PhaseAngle = &pa
		}
		log.Readings = append(log.Readings, rec)
	}
	return log
}

// Trend compares a reading with its predecessor.
func Trend(prev, cur float64) string {
	switch {
	case cur > prev:
		return TrendRising
	case cur < prev:
		return TrendFalling
	default:
		return TrendStable
	}
}
