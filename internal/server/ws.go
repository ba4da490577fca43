package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"renal-risk-stream/internal/stream"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxReadBytes = 1024
)

// Message is the JSON envelope sent to WebSocket clients.
type Message struct {
	Event string          `json:"event"`
	Data  stream.Snapshot `json:"data"`
}

// wsSink writes snapshots as envelopes. Writes are serialised with the
// keepalive pinger.
type wsSink struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn, done: make(chan struct{})}
}

func (s *wsSink) Send(ctx context.Context, snap stream.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Message{Event: "snapshot", Data: snap})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.write(websocket.TextMessage, data)
}

func (s *wsSink) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// ping keeps intermediaries from timing the connection out.
func (s *wsSink) ping() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.write(websocket.CloseMessage, msg)
		err = s.conn.Close()
	})
	return err
}

// readPump drains client frames and cancels the stream when the client
// goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowsAny(s.origins) {
				return true
			}
			for _, o := range s.origins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) streamWS(c *gin.Context) {
	pub, err := s.publisherFor(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.New()
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, http.Header{streamIDHeader: []string{id.String()}})
	if err != nil {
		// upgrader has already written the error response
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sink := newWSSink(conn)
	go readPump(conn, cancel)
	go sink.ping()

	if err := pub.Serve(ctx, id, sink); err != nil {
		s.logger.Debug().Err(err).Str("stream_id", id.String()).Msg("websocket stream ended")
	}
}
