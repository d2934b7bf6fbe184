// Package events streams session updates to websocket clients.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
)

// client is one websocket connection watching one session.
type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Hub fans session updates out to the websocket clients of that session.
// It is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]bool
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]bool),
		log:     log,
	}
}

// Publish sends u to every client watching u.SessionID. Slow clients whose
// buffer is full are disconnected.
func (h *Hub) Publish(u session.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal session update")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[u.SessionID] {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("session_id", u.SessionID).Msg("Dropping slow websocket client")
			h.removeLocked(c)
		}
	}
}

// Serve registers conn for sessionID, writes initial as the first message
// and blocks until the connection closes.
func (h *Hub) Serve(conn *websocket.Conn, sessionID string, initial any) {
	c := &client{conn: conn, sessionID: sessionID, send: make(chan []byte, sendBuffer)}

	if data, err := json.Marshal(initial); err == nil {
		c.send <- data
	}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]bool)
	}
	h.clients[sessionID][c] = true
	n := len(h.clients[sessionID])
	h.mu.Unlock()

	h.log.Info().Str("session_id", sessionID).Int("clients", n).Msg("WebSocket client connected")

	go h.writePump(c)

	// Clients never send anything useful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
	h.log.Info().Str("session_id", sessionID).Msg("WebSocket client disconnected")
}

// Clients returns the number of clients watching sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug().Err(err).Str("session_id", c.sessionID).Msg("Error sending message to client")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.sessionID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}
