package server

import (
	"context"
	"sync"

	"github.com/graylab/fleetsync/internal/infrastructure/logging"
)

// Hub tracks every live connection and fans broadcasts out to them.
//
// Lock ordering: the hub lock is released before any per-client send, so
// a slow client can never stall registration or another broadcast.
type Hub struct {
	logger  *logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during
// shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("client disconnected", "clients", h.ClientCount())
}

// Broadcast delivers a fresh envelope to every live client except origin.
// When excludeDevices is set, device connections are skipped entirely,
// which is used for connect/disconnect notices so devices do not receive
// device-presence chatter. Delivery is best-effort per client.
//
// The marshalled envelope is returned so callers can mirror it to the
// event relay; it is nil when nothing was broadcast.
func (h *Hub) Broadcast(origin *Client, msgType string, data any, excludeDevices bool) []byte {
	raw, err := encodeEnvelope(nextEnvelopeID(), msgType, data)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "type", msgType, "error", err)
		return nil
	}

	// Snapshot the client list under the hub lock, then send unlocked.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client == origin {
			continue
		}
		if excludeDevices && client.IsDevice() {
			continue
		}
		client.trySend(raw)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "type", msgType, "recipients", sent)
	}
	return raw
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
