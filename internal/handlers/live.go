package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/services"
	"github.com/ideahub/backend/pkg/logger"
	"github.com/ideahub/backend/pkg/response"
)

const maxClientFrame = 512

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// LiveHandler serves per-idea vote tallies over WebSocket or SSE.
type LiveHandler struct {
	hub      *services.LiveHub
	votes    *services.VoteService
	cfg      config.LiveConfig
	upgrader websocket.Upgrader
}

func NewLiveHandler(hub *services.LiveHub, votes *services.VoteService, cfg config.LiveConfig) *LiveHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &LiveHandler{
		hub:   hub,
		votes: votes,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers on other origins are allowed, same as the CORS policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// snapshot encodes the current tally for ideaID as a live update.
func (h *LiveHandler) snapshot(ctx context.Context, ideaID uuid.UUID) ([]byte, error) {
	summary, err := h.votes.Counts(ctx, ideaID, nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(services.NewVoteUpdate(ideaID, summary.VoteCounts))
}

// wsConn adapts a websocket connection to services.LiveConn. gorilla
// connections allow one concurrent writer, so every write holds writeMu.
type wsConn struct {
	id      string
	ws      *websocket.Conn
	timeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (w *wsConn) ID() string { return w.id }

func (w *wsConn) Send(payload []byte) error {
	return w.write(websocket.TextMessage, payload)
}

func (w *wsConn) ping() error {
	return w.write(websocket.PingMessage, nil)
}

func (w *wsConn) write(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.ws.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(messageType, data)
}

func (w *wsConn) Close() error {
	err := errConnClosed
	w.closeOnce.Do(func() {
		err = w.ws.Close()
	})
	return err
}

// readLoop drains client frames until the peer goes away. Any frame, text or
// pong, counts as liveness and extends the read deadline.
func (w *wsConn) readLoop(idle time.Duration, done chan<- struct{}) {
	defer close(done)

	w.ws.SetReadLimit(maxClientFrame)
	extend := func() error {
		return w.ws.SetReadDeadline(time.Now().Add(idle))
	}
	_ = extend()
	w.ws.SetPongHandler(func(string) error { return extend() })

	for {
		if _, _, err := w.ws.ReadMessage(); err != nil {
			return
		}
		_ = extend()
	}
}

// WebSocket subscribes the client to one idea's tally
// GET /api/ideas/:id/votes/ws
func (h *LiveHandler) WebSocket(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.votes.Counts(ctx, ideaID, nil); err != nil {
		response.Error(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		logger.Warn().Err(err).Str("idea_id", ideaID.String()).Msg("WebSocket upgrade failed")
		return
	}

	conn := &wsConn{id: uuid.NewString(), ws: ws, timeout: h.cfg.WriteTimeout}
	defer conn.Close()

	if !h.hub.Subscribe(conn, ideaID) {
		return
	}
	defer h.hub.Unsubscribe(conn, ideaID)

	log := logger.With("live").With().Str("conn_id", conn.id).Str("idea_id", ideaID.String()).Logger()
	log.Info().Msg("WebSocket client connected")

	// Snapshot after Subscribe so an update landing in between is not lost.
	data, err := h.snapshot(ctx, ideaID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build snapshot")
		return
	}
	if err := conn.Send(data); err != nil {
		return
	}

	done := make(chan struct{})
	go conn.readLoop(2*h.cfg.PingInterval, done)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info().Msg("WebSocket client disconnected")
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				log.Debug().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

// sseConn queues payloads for the streaming goroutine. Send never blocks; a
// full buffer means the client is not keeping up and it gets dropped.
type sseConn struct {
	id       string
	messages chan []byte
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSSEConn(buffer int) *sseConn {
	return &sseConn{
		id:       uuid.NewString(),
		messages: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (s *sseConn) ID() string { return s.id }

func (s *sseConn) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errConnClosed
	}
	select {
	case s.messages <- payload:
		return nil
	default:
		return errSlowConsumer
	}
}

func (s *sseConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errConnClosed
	}
	s.closed = true
	close(s.done)
	return nil
}

// Stream is the Server-Sent Events fallback for clients without WebSocket
// GET /api/ideas/:id/votes/stream
func (h *LiveHandler) Stream(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.votes.Counts(ctx, ideaID, nil); err != nil {
		response.Error(c, err)
		return
	}

	conn := newSSEConn(h.cfg.SendBuffer)
	defer conn.Close()

	if !h.hub.Subscribe(conn, ideaID) {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer h.hub.Unsubscribe(conn, ideaID)

	data, err := h.snapshot(ctx, ideaID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := conn.Send(data); err != nil {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	logger.Info().Str("conn_id", conn.id).Str("idea_id", ideaID.String()).Msg("SSE client connected")

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg := <-conn.messages:
			fmt.Fprintf(w, "event: votes\ndata: %s\n\n", msg)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-conn.done:
			return false
		case <-ctx.Done():
			logger.Info().Str("conn_id", conn.id).Msg("SSE client disconnected")
			return false
		}
	})
}
