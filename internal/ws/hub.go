// Package ws streams payment intent status changes to the storefront while the customer
// waits on the provider's hosted page.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"paycore/internal/events"
)

// Client represents a single WebSocket connection watching one order.
type Client struct {
	UserID  uint
	OrderID string
	Send    chan []byte
	Hub     *Hub
	mu      sync.Mutex
	closed  bool
}

func NewClient(userID uint, orderID string) *Client {
	return &Client{UserID: userID, OrderID: orderID, Send: make(chan []byte, 16)}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
	close(c.Send)
}

func (c *Client) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		// slow reader; it will pick up the final state from the snapshot on reconnect
	}
}

// Hub maintains the watchers per order and fans intent events out to them.
type Hub struct {
	mu      sync.RWMutex
	byOrder map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byOrder: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byOrder[c.OrderID] == nil {
		h.byOrder[c.OrderID] = make(map[*Client]struct{})
	}
	h.byOrder[c.OrderID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byOrder[c.OrderID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byOrder, c.OrderID)
		}
	}
}

// BroadcastToOrder sends payload to every watcher of orderID.
func (h *Hub) BroadcastToOrder(orderID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	m := h.byOrder[orderID]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.deliver(data)
	}
}

// Publish makes the hub an events.Publisher. It never fails.
func (h *Hub) Publish(_ context.Context, e events.IntentEvent) error {
	h.BroadcastToOrder(e.OrderID, Message{Type: "status", Event: &e})
	return nil
}

func (h *Hub) WatcherCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byOrder[orderID])
}

// Message is the envelope written to clients.
type Message struct {
	Type     string              `json:"type"`
	Event    *events.IntentEvent `json:"event,omitempty"`
	Snapshot any                 `json:"snapshot,omitempty"`
	Error    string              `json:"error,omitempty"`
}
