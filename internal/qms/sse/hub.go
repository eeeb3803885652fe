package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event types pushed to dashboards.
const (
	EventAndonRaised  = "andon_raised"
	EventAndonUpdated = "andon_updated"
	EventRunSubmitted = "run_submitted"
)

// Event is a single Server-Sent Event.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client is a connected dashboard. LineID, when set, limits line-scoped
// events to that line.
type Client struct {
	ID     string
	UserID string
	LineID string
	Events chan Event
}

// Hub fans events out to connected clients. Sends never block: a client whose
// buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event to every client.
func (h *Hub) Broadcast(event Event) {
	h.send(event, "")
}

// PublishLine marshals payload and sends it to clients watching lineID or all lines.
func (h *Hub) PublishLine(eventType, lineID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("sse payload marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.send(Event{EventType: eventType, Data: string(data)}, lineID)
}

func (h *Hub) send(event Event, lineID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if lineID != "" && client.LineID != "" && client.LineID != lineID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, dropping event",
				zap.String("client_id", client.ID),
				zap.String("event", event.EventType))
		}
	}
}
