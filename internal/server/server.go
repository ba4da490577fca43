// Package server exposes the live risk feed and the classification API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renal-risk-stream/internal/cache"
	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/simulator"
	"renal-risk-stream/internal/stream"
	"renal-risk-stream/internal/version"
)

// LatestReader returns the last cached snapshot of a stream.
type LatestReader interface {
	Latest(ctx context.Context, id uuid.UUID) (stream.Snapshot, error)
}

// Options configure the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// Frames is the scenario served by the scenario endpoint.
	Frames []simulator.Keyframe
}

// Server wires the gin router to the publisher and collaborators.
type Server struct {
	engine    *gin.Engine
	publisher *stream.Publisher
	latest    LatestReader
	frames    []simulator.Keyframe
	origins   []string
	logger    zerolog.Logger
}

// New builds the router. latest may be nil when no cache is configured.
func New(opts Options, publisher *stream.Publisher, latest LatestReader, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	frames := opts.Frames
	if frames == nil {
		frames = simulator.DefaultScenario()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		engine:    gin.New(),
		publisher: publisher,
		latest:    latest,
		frames:    frames,
		origins:   origins,
		logger:    logger.With().Str("component", "http").Logger(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger))
	r.Use(cors.New(s.corsConfig()))

	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	{
		api.GET("/stream", s.streamSSE)
		api.GET("/ws", s.streamWS)
		api.POST("/classify", s.classify)
		api.GET("/scenario", s.scenario)
		api.GET("/streams/:id/latest", s.latestSnapshot)
	}
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length", streamIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if allowsAny(s.origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.origins
	}
	return cfg
}

func (s *Server) health(c *gin.Context) {
	opts := s.publisher.Options()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"build":    version.Get(),
		"profile":  opts.Profile.Name(),
		"strategy": opts.Strategy.Name(),
	})
}

func (s *Server) scenario(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hours":       simulator.ScenarioHours,
		"duration_ms": simulator.Duration(s.frames).Milliseconds(),
		"keyframes":   s.frames,
	})
}

func (s *Server) latestSnapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	if s.latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot cache not configured"})
		return
	}

	snap, err := s.latest.Latest(c.Request.Context(), id)
	switch {
	case errors.Is(err, cache.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for stream"})
	case err != nil:
		s.logger.Error().Err(err).Str("stream_id", id.String()).Msg("read latest snapshot")
		c.JSON(http.StatusBadGateway, gin.H{"error": "snapshot cache unavailable"})
	default:
		c.JSON(http.StatusOK, snap)
	}
}

// publisherFor applies the optional profile and strategy query overrides.
func (s *Server) publisherFor(c *gin.Context) (*stream.Publisher, error) {
	var (
		profile  risk.Profile
		strategy fusion.Strategy
		err      error
	)
	if name := c.Query("profile"); name != "" {
		if profile, err = risk.ProfileByName(name); err != nil {
			return nil, err
		}
	}
	if name := c.Query("strategy"); name != "" {
		if strategy, err = fusion.ByName(name); err != nil {
			return nil, err
		}
	}
	if profile == nil && strategy == nil {
		return s.publisher, nil
	}
	return s.publisher.WithClassification(profile, strategy), nil
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
