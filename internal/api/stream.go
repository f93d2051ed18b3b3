package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forex-autopilot/internal/events"
	"forex-autopilot/internal/markethours"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub relays engine events to WebSocket clients. Slow clients drop
// messages rather than stall the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	latest map[string][]byte // last envelope per event type
	now    func() time.Time
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
		now:     time.Now,
	}
}

// Run relays events from bus until ctx is done or the bus closes.
func (h *Hub) Run(ctx context.Context, bus *events.FanOut) {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	heartbeat := time.NewTicker(pingEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-ch:
			if !ok {
				h.closeAll()
				return
			}
			h.Broadcast(ev)
		case <-heartbeat.C:
			now := h.now()
			msg, _ := json.Marshal(map[string]any{
				"type":          "heartbeat",
				"market_open":   markethours.IsMarketOpen(now),
				"market_status": markethours.StatusString(now),
				"clients":       h.ClientCount(),
			})
			h.fanout(msg)
		}
	}
}

// Broadcast sends ev to every client and remembers it as the latest of its
// type.
func (h *Hub) Broadcast(ev events.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("stream encode failed", "type", ev.Kind, "error", err)
		return
	}
	h.mu.Lock()
	h.latest[ev.Kind] = msg
	h.mu.Unlock()
	h.fanout(msg)
}

func (h *Hub) fanout(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// HandleWS upgrades the request and registers the client. New clients
// receive the latest event of every type first.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer), hub: h}

	h.mu.Lock()
	for _, msg := range h.latest {
		select {
		case c.send <- msg:
		default:
		}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "clients", count)
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
