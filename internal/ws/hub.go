// Package ws streams telemetry events to WebSocket clients. Every client
// owns a buffered send queue drained by its own writer goroutine, so one
// stalled connection can never hold up the tracker or runner publishing a
// sample: a client that falls behind loses messages, not the whole feed.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jdiez17/sat-o-mat/internal/telemetry"
)

const (
	// sendQueueSize bounds how far a slow client may fall behind before
	// events are dropped for it.
	sendQueueSize = 64

	writeDeadline = 3 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 20 * time.Second
)

// client pairs a connection with its private send queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans telemetry payloads out to every connected client. Publish never
// blocks: marshalling happens once, delivery is a non-blocking enqueue per
// client.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns an empty hub. Call Run in a goroutine to tie its lifetime
// to a context.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Publish marshals the event once and enqueues it for every client. A
// client whose queue is full keeps its connection but misses this event.
func (h *Hub) Publish(ev telemetry.Payload) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

// Run blocks until ctx is cancelled, then disconnects every client and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}

// Handler upgrades incoming requests to WebSocket connections. Clients are
// read-only; inbound frames are drained only to service pong handling.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		h.mu.Unlock()

		go h.writeLoop(c)
		go h.readLoop(c)
	})
}

// drop removes a client and tears down its connection. Safe to call from
// both loops; only the first caller wins.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if present {
		_ = c.conn.Close()
	}
}

// writeLoop drains the client's queue and keeps the connection alive with
// pings. Any write error drops the client.
func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Queue closed by drop or shutdown.
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(c)
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop services pongs and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
