package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"renal-risk-stream/internal/stream"
)

const streamIDHeader = "X-Stream-ID"

// sseSink frames each snapshot as one Server-Sent Events data message.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(ctx context.Context, snap stream.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := encodeSSE(snap)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func encodeSSE(snap stream.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func (s *Server) streamSSE(c *gin.Context) {
	pub, err := s.publisherFor(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	id := uuid.New()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header(streamIDHeader, id.String())
	c.Status(http.StatusOK)
	flusher.Flush()

	if err := pub.Serve(c.Request.Context(), id, &sseSink{w: c.Writer, flusher: flusher}); err != nil {
		s.logger.Debug().Err(err).Str("stream_id", id.String()).Msg("sse stream ended")
	}
}
