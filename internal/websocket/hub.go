// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"bms-dashboard/internal/metrics"
)

// UpdateEvent is the broadcast payload. It carries no state; it only tells
// clients to refetch devices and dashboard aggregates through the HTTP API.
type UpdateEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Hub maintains the set of live subscriber clients and fans lightweight
// refetch signals out to them. The hub only ever touches a client's Send
// channel, so the underlying transport stays pluggable.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Run blocks until ctx is cancelled, then closes every remaining client.
// The hub itself is lock-based; Run exists so shutdown has an owner.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
	metrics.WebsocketClients.Set(0)
	log.Println("WebSocket hub stopped")
}

// Register adds a client to the live set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	log.Printf("WebSocket client registered: %s", client.id)
}

// Unregister removes a client and closes its send channel. Safe to call for
// a client that was already dropped by a broadcast.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		metrics.WebsocketClients.Set(float64(len(h.clients)))
		log.Printf("WebSocket client unregistered: %s", client.id)
	}
}

// ClientCount reports the current live-set size.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastUpdate delivers a telemetry_update event to every live client,
// best-effort. Delivery never blocks: a client whose send buffer is full is
// dropped from the live set without affecting the others or the caller.
func (h *Hub) BroadcastUpdate(ts time.Time) {
	event := UpdateEvent{Type: "telemetry_update", Timestamp: ts.UTC().Format(time.RFC3339)}
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling update event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.Send <- message:
		default:
			log.Printf("WebSocket client %s send buffer full, removing", client.id)
			delete(h.clients, client)
			close(client.Send)
		}
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	metrics.BroadcastsSent.Inc()
}
