package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is the frame pushed to connected clients.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans notification events out to connected clients, grouped by product
// or by user identity. Delivery is best effort: there is no queueing, no
// acknowledgment and no replay. A disconnected recipient misses the event.
type Hub struct {
	mu       sync.RWMutex
	products map[uuid.UUID]map[*Client]struct{}
	users    map[uuid.UUID]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		products: make(map[uuid.UUID]map[*Client]struct{}),
		users:    make(map[uuid.UUID]map[*Client]struct{}),
		logger:   logger,
	}
}

// EmitToProduct delivers an event to everyone watching the product.
func (h *Hub) EmitToProduct(productID uuid.UUID, event string, payload json.RawMessage) {
	frame, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		h.logger.Warn("failed to marshal event frame", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.products[productID] {
		client.trySend(frame)
	}
}

// EmitToUser delivers an event to every connection the user holds.
func (h *Hub) EmitToUser(userID uuid.UUID, event string, payload json.RawMessage) {
	frame, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		h.logger.Warn("failed to marshal event frame", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.users[userID] {
		client.trySend(frame)
	}
}

func (h *Hub) joinProduct(c *Client, productID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.products[productID]
	if !ok {
		group = make(map[*Client]struct{})
		h.products[productID] = group
	}
	group[c] = struct{}{}
	c.products[productID] = struct{}{}
}

func (h *Hub) leaveProduct(c *Client, productID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromProduct(c, productID)
	delete(c.products, productID)
}

func (h *Hub) joinUser(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.users[c.userID]
	if !ok {
		group = make(map[*Client]struct{})
		h.users[c.userID] = group
	}
	group[c] = struct{}{}
	c.inUserGroup = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for productID := range c.products {
		h.removeFromProduct(c, productID)
	}
	if c.inUserGroup {
		if group, ok := h.users[c.userID]; ok {
			delete(group, c)
			if len(group) == 0 {
				delete(h.users, c.userID)
			}
		}
	}
	close(c.send)
}

// removeFromProduct assumes h.mu is held.
func (h *Hub) removeFromProduct(c *Client, productID uuid.UUID) {
	if group, ok := h.products[productID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.products, productID)
		}
	}
}

// Client is one websocket connection with its outbound queue.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      uuid.UUID
	products    map[uuid.UUID]struct{}
	inUserGroup bool
}

// trySend queues a frame without blocking. A client that cannot keep up has
// its frame dropped rather than stalling the emit path. The send channel is
// only closed while holding the hub lock, which every emit also holds.
func (c *Client) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}
