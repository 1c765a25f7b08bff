package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/aegis-risk/internal/metrics"
	"github.com/wonny/aegis-risk/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 16
)

// Hub fans monitor updates out to websocket subscribers.
// Slow clients whose buffer is full are disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	log      *logger.Logger
	done     chan struct{}
	once     sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:  log.Component("stream"),
		done: make(chan struct{}),
	}
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes v as JSON and queues it for every subscriber
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode stream message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.removeLocked(c)
			h.log.Warn("Dropping slow stream subscriber")
		}
	}
}

// ServeWS upgrades the request and registers the subscriber
// GET /monitor/stream
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.clients[c] = struct{}{}
	metrics.StreamSubscribers.Inc()
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every subscriber and refuses new ones
func (h *Hub) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		close(h.done)
		for c := range h.clients {
			h.removeLocked(c)
		}
		h.mu.Unlock()
	})
}

// Run closes the hub when ctx is done
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		h.Close()
	case <-h.done:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.StreamSubscribers.Dec()
}

// readPump only handles control frames; subscribers do not send data
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
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
