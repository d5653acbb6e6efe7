// Package gateway exposes the bot over HTTP: a REST surface for control and
// queries plus a WebSocket fan-out of per-tick state snapshots.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	clientSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub fans snapshots out to WebSocket clients. It implements
// model.SnapshotPublisher: Publish never blocks, a client whose send buffer
// is full is dropped rather than stalling the decision loop.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	latest  []byte
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]bool),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Publish broadcasts the snapshot to all connected clients.
func (h *Hub) Publish(snap model.StateSnapshot) {
	payload := snap.JSON()

	h.mu.Lock()
	h.latest = payload
	var dropped []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for range dropped {
		h.log.Warn("ws client dropped, send buffer full")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the peer.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer), hub: h}

	h.mu.Lock()
	h.clients[c] = true
	latest := h.latest
	h.mu.Unlock()

	// Seed the new client with the last snapshot so it renders immediately.
	if latest != nil {
		c.send <- latest
	}

	go c.writePump()
	go c.readPump()
	h.log.Info("ws client connected", "remote", conn.RemoteAddr().String())
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued snapshots into one frame, newest last.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Clients don't send application messages; reads only service
		// control frames and detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
