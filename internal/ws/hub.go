// internal/ws/hub.go
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is a session lifecycle notification pushed to connected clients.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	EventSessionRevoked = "session:revoked"
)

// Hub fans session events out to the websocket connections of each user.
// Bucketing is by user id; one user may hold several open connections
// (multiple tabs, devices).
type Hub struct {
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run processes client registration until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if conns[client] {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for client := range conns {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}

// ForceLogout notifies every connection of the user that a session was
// revoked. With an empty sessionID the event covers all of the user's
// sessions.
func (h *Hub) ForceLogout(userID int64, sessionID, reason string) {
	event := Event{
		Type: EventSessionRevoked,
		Data: map[string]any{
			"session_id": sessionID,
			"reason":     reason,
		},
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal session event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// slow consumer, drop the event rather than block the hub
			h.logger.Warn("dropping session event for slow client",
				zap.Int64("user_id", userID),
			)
		}
	}
}
