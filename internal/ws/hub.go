// Package ws is the WebSocket transport for the orchestrator. Each
// connection is one session; events flow as JSON text messages in both
// directions.
package ws

import (
	"sync"

	"github.com/swarmbench/swarmbench/internal/worker"
)

// Event is the wire envelope for outbound messages.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

// Hub tracks connected clients by session id and implements
// session.Emitter, routing orchestrator events to the owning connection.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.sessionID] = c
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c.sessionID] == c {
		delete(h.clients, c.sessionID)
	}
	h.mu.Unlock()
}

func (h *Hub) get(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats delivers one stats sample to the session's client.
func (h *Hub) Stats(sessionID string, payload worker.StatsPayload) {
	if c := h.get(sessionID); c != nil {
		c.send(Event{Type: "stats", Data: payload})
	}
}

// Error reports a non-fatal failure to the session's client.
func (h *Hub) Error(sessionID, message string) {
	if c := h.get(sessionID); c != nil {
		c.send(Event{Type: "error", Data: errorData{Message: message}})
	}
}

// TestStopped notifies the client that its run was stopped server-side.
func (h *Hub) TestStopped(sessionID, message string) {
	if c := h.get(sessionID); c != nil {
		c.send(Event{Type: "test_stopped", Data: errorData{Message: message}})
	}
}

// Disconnected drops the session's connection; the read pump unwinds and
// finishes any remaining teardown.
func (h *Hub) Disconnected(sessionID string) {
	if c := h.get(sessionID); c != nil {
		c.Close()
	}
}
