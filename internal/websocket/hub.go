// Package websocket streams sign-in activity to connected admin clients.
package websocket

import (
	"log/slog"
	"sync"
	"time"
)

// Event actions.
const (
	ActionLinkIssued     = "link_issued"
	ActionSessionStarted = "session_started"
	ActionSessionEnded   = "session_ended"
	ActionRoleChanged    = "role_changed"
)

// Event describes one piece of auth activity. Principal is the public id;
// internal ids are never broadcast.
type Event struct {
	Type      string         `json:"type"`
	Principal string         `json:"principal,omitempty"`
	At        time.Time      `json:"at"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func NewEvent(action, principal string, extra map[string]any) Event {
	return Event{
		Type:      action,
		Principal: principal,
		At:        time.Now().UTC(),
		Extra:     extra,
	}
}

// Hub fans events out to every connected admin.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed subscriber joined", "admin", c.admin, "subscribers", n)
}

// Unregister removes a client and closes its queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.events)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("feed subscriber left", "admin", c.admin, "dropped", c.dropped.Load())
	}
}

// Publish queues ev for every subscriber. A subscriber with a full queue
// misses the event instead of stalling the request that produced it.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.offer(ev) {
			h.logger.Debug("feed event dropped", "admin", c.admin, "type", ev.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
