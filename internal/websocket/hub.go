// Package websocket carries the server side of the chat protocol: the hub
// that fans events out to live connections, the per-connection client
// pumps, and the router that drives the session state machine.
package websocket

import (
	"encoding/json"
	"sync"

	"chat-relay/internal/models"
	"chat-relay/internal/registry"
	"chat-relay/pkg/logger"
)

// Hub holds every attached connection and delivers encoded events to one,
// several, or all of them. Delivery is best-effort per recipient: a
// connection that has detached or whose send buffer is full is skipped,
// never aborting delivery to the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[registry.ConnID]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[registry.ConnID]*Client)}
}

// Attach makes the connection reachable for fan-out.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// Detach removes the connection from the delivery set. Idempotent.
func (h *Hub) Detach(id registry.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Send delivers one event to one connection. Returns false if the
// connection is gone or its buffer is full.
func (h *Hub) Send(id registry.ConnID, ev *models.ServerEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return false
	}

	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.enqueue(c, data)
}

// Broadcast delivers one event to every attached connection.
func (h *Hub) Broadcast(ev *models.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueue(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		// Slow consumer; drop rather than stall the sender.
		logger.Debug("Dropping event for connection %s: send buffer full", c.id)
		return false
	}
}
