package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub streams every published state to the connected websocket clients
type Hub struct {
	upgrader   websocket.Upgrader
	logger     logrus.FieldLogger
	bufferSize int

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub; each client buffers up to bufferSize states before it is dropped
func NewHub(bufferSize int, logger logrus.FieldLogger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     logger,
		bufferSize: bufferSize,
		clients:    make(map[*wsClient]struct{}),
	}
}

// WriteState broadcasts state to every client without blocking; slow clients are disconnected
func (h *Hub) WriteState(state *models.EntityState) {
	if state == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		h.logger.WithField("unique_id", state.UniqueID).WithError(err).Error("Hub: Failed to marshal state")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Hub: Client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams states until the client goes away.
// initial states are sent first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial []*models.EntityState) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Hub: WebSocket upgrade error")
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, h.bufferSize+len(initial)),
	}
	for _, state := range initial {
		payload, err := json.Marshal(state)
		if err != nil {
			continue
		}
		c.send <- payload
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("clients", count).Info("Hub: Client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("clients", count).Info("Hub: Client disconnected")
}

// readPump discards client messages and detects disconnects
func (h *Hub) readPump(c *wsClient) {
	defer h.unregister(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.WithError(err).Debug("Hub: WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
