package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/radiowatch/tetra-monitor/internal/model"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Hub fans engine notifications out to websocket clients. A client that
// cannot keep up with the stream is dropped rather than allowed to block
// reconciliation.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	sync     func() []model.Notification

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New builds a hub. sync supplies the messages every fresh connection
// receives before joining the broadcast stream.
func New(logger *slog.Logger, sync func() []model.Notification) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sync:    sync,
		clients: map[string]*client{},
	}
}

// Notify implements engine.Notifier.
func (h *Hub) Notify(n model.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		return
	}
	h.broadcast(body)
}

func (h *Hub) broadcast(body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- body:
		default:
			h.logger.Warn("dropping slow websocket client", "client", id)
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves the notification stream.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBufferSize)}

	// Initial synchronization happens before the client joins the broadcast
	// set, so it never sees an update for state it has not received yet.
	if h.sync != nil {
		for _, n := range h.sync() {
			body, err := json.Marshal(n)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				_ = conn.Close()
				return
			}
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "client", c.id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for body := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains incoming frames until the peer goes away. Clients send
// nothing meaningful; reading is only how close and ping frames surface.
func (h *Hub) readPump(c *client) {
	defer h.drop(c.id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
		h.logger.Info("websocket client disconnected", "client", id)
	}
}
