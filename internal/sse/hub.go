package sse

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Client represents one connected SSE stream of a user.
type Client struct {
	ID     string
	UserID int64
	Events chan []byte
}

// Hub manages SSE client connections. A user may hold several streams.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[int64]map[string]*Client
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		byUser:  make(map[int64]map[string]*Client),
	}
}

// Register adds a new stream for the user and returns it.
func (h *Hub) Register(connID string, userID int64) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{
		ID:     connID,
		UserID: userID,
		Events: make(chan []byte, 64),
	}
	h.clients[connID] = c
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Client)
	}
	h.byUser[userID][connID] = c
	log.Info().Str("conn_id", connID).Int64("user_id", userID).Int("total_clients", len(h.clients)).Msg("SSE client connected")
	return c
}

// Unregister removes a stream and closes its channel.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	close(c.Events)
	delete(h.clients, connID)
	if streams := h.byUser[c.UserID]; streams != nil {
		delete(streams, connID)
		if len(streams) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	log.Info().Str("conn_id", connID).Int("total_clients", len(h.clients)).Msg("SSE client disconnected")
}

// Send writes data to every stream of the given users.
// Non-blocking: drops the message if a client buffer is full.
func (h *Hub) Send(userIDs []int64, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, id := range userIDs {
		for _, c := range h.byUser[id] {
			select {
			case c.Events <- data:
				sent++
			default:
				log.Warn().Str("conn_id", c.ID).Int64("user_id", id).Msg("SSE client buffer full, dropping event")
			}
		}
	}
	return sent
}

// ClientCount returns the number of connected streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
