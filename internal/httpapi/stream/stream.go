// Package stream serves GET /stream/events: a gorilla/websocket feed
// that lets an operator watch a gate or hold resolve live, instead of
// polling the HTTP surface. A hub fans eventchain.Event appends out to
// connected clients over register/unregister/broadcast channels, with
// the client set guarded by a mutex.
package stream

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nooterra/substrate/internal/eventchain"
)

// Hub fans out every chain append to connected websocket clients,
// filtered by tenant so one tenant's operators never see another's
// events.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan taggedEvent
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

type client struct {
	conn     *websocket.Conn
	tenantID string
	streamID string // empty means "every stream for this tenant"
}

type taggedEvent struct {
	tenantID string
	event    eventchain.Event
}

// NewHub constructs an idle Hub; call Run in its own goroutine before
// Serve starts accepting connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan taggedEvent, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drains the register/unregister/broadcast channels until ctx-less
// shutdown (the process exiting); it owns the clients map so all access
// to it happens on this single goroutine except for reads under mu.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			h.mu.Unlock()
		case te := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.tenantID != te.tenantID {
					continue
				}
				if c.streamID != "" && c.streamID != te.event.StreamID {
					continue
				}
				if err := c.conn.WriteJSON(te.event); err != nil {
					log.Printf("stream: write error: %v", err)
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish fans ev out to every subscriber of tenantID. Safe to call from
// any goroutine that appends to the chain (internal/eventchain.Chain
// itself has no knowledge of this hub; callers wire it in explicitly,
// keeping the chain free of a UI-facing dependency).
func (h *Hub) Publish(tenantID string, ev eventchain.Event) {
	select {
	case h.broadcast <- taggedEvent{tenantID: tenantID, event: ev}:
	default:
		log.Printf("stream: broadcast buffer full, dropping event %s", ev.ID)
	}
}

// ServeHTTP upgrades the request to a websocket and registers the caller
// as a subscriber for the tenant header set by httpapi's tenant
// middleware, optionally narrowed to a single ?streamId=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get("x-proxy-tenant-id")
	if tenantID == "" {
		http.Error(w, "x-proxy-tenant-id header required", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream: upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, tenantID: tenantID, streamID: r.URL.Query().Get("streamId")}
	h.register <- c

	go func() {
		defer func() { h.unregister <- c }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
