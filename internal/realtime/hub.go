// Package realtime fans household lifecycle events out to connected clients:
// joins, departures, ownership transfers, invite changes, and entitlement
// updates. Delivery is best-effort; a slow client drops messages.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is one household-scoped event.
type Message struct {
	Event       string         `json:"event"`
	HouseholdID int64          `json:"household_id"`
	Data        map[string]any `json:"data,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages. A client
// subscribed to a household receives only that household's events.
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

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// HouseholdEvent broadcasts an event to every client subscribed to the
// household. Satisfies the Notifier interfaces of the lifecycle services.
func (h *Hub) HouseholdEvent(householdID int64, event string, data map[string]any) {
	h.Broadcast(Message{Event: event, HouseholdID: householdID, Data: data})
}

// Broadcast sends a message to all matching clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.householdID != 0 && c.householdID != msg.HouseholdID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
