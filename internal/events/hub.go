package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// clientBuffer is how many undelivered messages a client may queue before
// further messages to it are dropped.
const clientBuffer = 64

// Message is one encoded event queued for an SSE client.
type Message struct {
	Event EventType
	Data  []byte
}

// Client represents a connected SSE client.
type Client struct {
	ID     string
	Events chan Message
}

// Hub manages SSE client connections and broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client and returns it for streaming.
func (h *Hub) Register(clientID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{
		ID:     clientID,
		Events: make(chan Message, clientBuffer),
	}
	h.clients[clientID] = c
	log.Info().Str("client_id", clientID).Int("total_clients", len(h.clients)).Msg("SSE client connected")
	return c
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.Events)
		delete(h.clients, clientID)
		log.Info().Str("client_id", clientID).Int("total_clients", len(h.clients)).Msg("SSE client disconnected")
	}
}

// Broadcast sends an event to all connected clients.
// Non-blocking: drops the message for any client whose buffer is full.
func (h *Hub) Broadcast(event EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to marshal SSE event")
		return
	}
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.Events <- msg:
		default:
			log.Warn().Str("client_id", c.ID).Str("event", string(event)).Msg("SSE client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
