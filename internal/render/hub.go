package render

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"spxreplay/internal/playback"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the message pushed to browser clients.
type Envelope struct {
	Type   string           `json:"type"`
	Frame  *playback.Frame  `json:"frame,omitempty"`
	Status *playback.Status `json:"status,omitempty"`
}

// Hub fans frames and status updates out to WebSocket clients. A joining
// client first receives the latest status and frame.
type Hub struct {
	logger zerolog.Logger

	mu           sync.RWMutex
	clients      map[*client]struct{}
	latestFrame  []byte
	latestStatus []byte
	closed       bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "ws_hub").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client. A closed hub
// answers 503.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	for _, msg := range [][]byte{h.latestStatus, h.latestFrame} {
		if msg != nil {
			c.send <- msg
		}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", count).Msg("ws client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// Render broadcasts the frame. Slow clients miss frames rather than stall
// the engine.
func (h *Hub) Render(_ context.Context, frame playback.Frame) error {
	msg, err := json.Marshal(Envelope{Type: "frame", Frame: &frame})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	h.broadcast(msg, func() { h.latestFrame = msg })
	return nil
}

// UpdateStatus broadcasts the status line.
func (h *Hub) UpdateStatus(status playback.Status) {
	msg, err := json.Marshal(Envelope{Type: "status", Status: &status})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode status")
		return
	}
	h.broadcast(msg, func() { h.latestStatus = msg })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg []byte, remember func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	remember()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug().Msg("ws client lagging; message dropped")
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", count).Msg("ws client disconnected")
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client input and unregisters on disconnect.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	_ playback.Renderer   = (*Hub)(nil)
	_ playback.StatusSink = (*Hub)(nil)
	_ http.Handler        = (*Hub)(nil)
)
