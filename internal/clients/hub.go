// Package clients tracks connected page clients and broadcasts worker
// notifications to them.
package clients

import (
	"sync"

	"github.com/urbanpack/offsync/internal/logger"
)

// Client is one connected page. Send delivers a JSON-shaped message.
type Client interface {
	ID() string
	Send(v any) error
}

// Hub is the set of currently connected page clients. It is an injected
// value owned by the server, not a package global.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
	log     logger.Logger
}

// NewHub creates an empty Hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]Client),
		log:     log,
	}
}

// Register adds a client.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	h.mu.Unlock()
	h.log.Debug("page client registered", logger.String("client_id", c.ID()))
}

// Unregister removes a client by ID.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	h.log.Debug("page client unregistered", logger.String("client_id", id))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client. A failed send is
// logged and skipped; one dead connection must not block the rest.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(v); err != nil {
			h.log.Warn("broadcast to page client failed",
				logger.String("client_id", c.ID()),
				logger.Error(err))
		}
	}
}

// Claim tells every open page client that this worker version now controls
// request handling, so pages switch over without a manual reload.
func (h *Hub) Claim(version string) {
	h.Broadcast(map[string]string{
		"type":    "CLIENT_CLAIM",
		"version": version,
	})
}
