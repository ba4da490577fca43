package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
)

// ClassifyRequest is one set of measurements to classify and fuse.
type ClassifyRequest struct {
	Urea       *float64 `json:"urea" binding:"required"`
	EcwTbw     *float64 `json:"ecw_tbw" binding:"required"`
	PhaseAngle *float64 `json:"phase_angle" binding:"required"`
	HeartRate  *float64 `json:"heart_rate" binding:"required"`
	SpO2       *float64 `json:"spo2" binding:"required"`
	Profile    string   `json:"profile"`
	Strategy   string   `json:"strategy"`
}

// ClassifyResponse carries the per-signal readings and the fused result.
type ClassifyResponse struct {
	Profile  string         `json:"profile"`
	Readings []risk.Reading `json:"readings"`
	Fusion   fusion.Result  `json:"fusion"`
}

func (s *Server) classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	opts := s.publisher.Options()
	profile, strategy := opts.Profile, opts.Strategy
	var err error
	if req.Profile != "" {
		if profile, err = risk.ProfileByName(req.Profile); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Strategy != "" {
		if strategy, err = fusion.ByName(req.Strategy); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	resp, err := Classify(profile, strategy, req, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Classify reads every measurement of req through profile and fuses the
// resulting levels with strategy.
func Classify(profile risk.Profile, strategy fusion.Strategy, req ClassifyRequest, at time.Time) (ClassifyResponse, error) {
	urea, err := profile.Read(risk.SignalUrea, *req.Urea, 0, at)
	if err != nil {
		return ClassifyResponse{}, err
	}
	fluid, err := profile.Read(risk.SignalFluid, *req.EcwTbw, *req.PhaseAngle, at)
	if err != nil {
		return ClassifyResponse{}, err
	}
	hr, err := profile.Read(risk.SignalHeartRate, *req.HeartRate, 0, at)
	if err != nil {
		return ClassifyResponse{}, err
	}
	spo2, err := profile.Read(risk.SignalSpO2, *req.SpO2, 0, at)
	if err != nil {
		return ClassifyResponse{}, err
	}

	result := strategy.Fuse(fusion.Inputs{
		Urea:      urea.Risk,
		Fluid:     fluid.Risk,
		HeartRate: hr.Risk,
		SpO2:      spo2.Risk,
	})
	return ClassifyResponse{
		Profile:  profile.Name(),
		Readings: []risk.Reading{urea, fluid, hr, spo2},
		Fusion:   result,
	}, nil
}
