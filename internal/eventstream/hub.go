// Package eventstream broadcasts license lifecycle events to connected admin
// dashboards over WebSocket (the "Admin live event stream" enrichment in
// SPEC_FULL.md). Client registration and
// broadcast happen on the single Run() goroutine, mirroring the teacher's
// chat hub's event-loop design.
package eventstream

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// EventType names a license lifecycle event broadcast over the stream.
type EventType string

const (
	EventLicenseBound       EventType = "license.bound"
	EventLicenseReleased    EventType = "license.released"
	EventLicenseRevoked     EventType = "license.revoked"
	EventLicenseSuspended   EventType = "license.suspended"
	EventLicenseReinstated  EventType = "license.reinstated"
	EventLicenseExpired     EventType = "license.expired"
	EventLicenseBlacklisted EventType = "license.blacklisted"
	EventLicenseCreated     EventType = "license.created"
)

// Envelope is the wire format for a single broadcast event.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Hub maintains the set of connected admin dashboards and fans out events.
// Registration, unregistration, and broadcast are all owned by Run() so the
// client set never needs a lock.
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
}

// NewHub builds a Hub. Call Run in a goroutine before serving any
// connections.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run is the hub's event loop. Call once in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			slog.Info("eventstream connected", "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				slog.Info("eventstream disconnected", "total", len(h.clients))
			}

		case evt := <-h.broadcast:
			for c := range h.clients {
				c.sendEvent(evt)
			}
		}
	}
}

// Broadcast queues evt for delivery to every connected dashboard. Safe to
// call before Run's goroutine starts since the channel is buffered.
func (h *Hub) Broadcast(evt Envelope) {
	select {
	case h.broadcast <- evt:
	default:
		slog.Warn("eventstream broadcast buffer full, dropping event", "type", evt.Type)
	}
}

// ServeWS upgrades an HTTP connection and registers it as an event
// subscriber. Mounted behind licenses:read auth (spec §4.I).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("eventstream upgrade failed", "err", err)
		return
	}
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	go c.readPump()
}
