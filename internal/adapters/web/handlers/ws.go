package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"triggerflow/internal/domain/models"
)

// UpdatesBroadcaster fans order-update events out to websocket clients.
type UpdatesBroadcaster struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewUpdatesBroadcaster creates a broadcaster with no connected clients
func NewUpdatesBroadcaster(logger *slog.Logger) *UpdatesBroadcaster {
	return &UpdatesBroadcaster{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast sends an order update to every connected client. A failed write
// drops the client.
func (b *UpdatesBroadcaster) Broadcast(update models.OrderUpdate) {
	msg, err := json.Marshal(update)
	if err != nil {
		b.logger.Error("Encoding order update failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Handle upgrades the connection and registers the client
func (b *UpdatesBroadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("Websocket client connected", "remote", conn.RemoteAddr())

	// Read loop: inbound messages are ignored, closure unregisters.
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects all clients
func (b *UpdatesBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
}
