package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client represents a WebSocket client. It receives the job events of its
// session, narrowed to the jobs it subscribed to if it subscribed to any.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string

	mu            sync.RWMutex
	subscriptions map[string]bool
}

// Hub manages WebSocket connections
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub. Connections are accepted from
// allowedOrigins, or from any origin when it contains "*".
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    m,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.RecordWebSocketConnection(true)
			}
			h.logger.Debug("Client connected", zap.String("session_id", client.sessionID), zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if h.metrics != nil {
					h.metrics.RecordWebSocketConnection(false)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", zap.Int("total_clients", total))
		}
	}
}

// HandleConnection upgrades the request and attaches the connection to sessionID
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		sessionID:     sessionID,
		subscriptions: make(map[string]bool),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Dispatch delivers a job event to the clients of its session
func (h *Hub) Dispatch(ev jobs.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode job event", zap.Error(err))
		return
	}
	msg, err := json.Marshal(Message{Type: string(ev.Type), Payload: payload})
	if err != nil {
		h.logger.Error("Failed to encode websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.wants(ev) {
			continue
		}
		select {
		case client.send <- msg:
			if h.metrics != nil {
				h.metrics.RecordWebSocketMessage(string(ev.Type))
			}
		default:
			// Client buffer full, skip
			h.logger.Debug("Dropping event for slow client", zap.String("session_id", client.sessionID))
		}
	}
}

func (c *Client) wants(ev jobs.Event) bool {
	if ev.SessionID != c.sessionID {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[ev.JobID]
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Debug("Invalid WebSocket message", zap.Error(err))
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("WebSocket write error", zap.Error(err))
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

func (c *Client) handleMessage(msg Message) {
	var payload struct {
		JobID string `json:"jobId"`
	}

	switch msg.Type {
	case "subscribe":
		if err := json.Unmarshal(msg.Payload, &payload); err == nil && payload.JobID != "" {
			c.mu.Lock()
			c.subscriptions[payload.JobID] = true
			c.mu.Unlock()
			c.hub.logger.Debug("Client subscribed to job", zap.String("job_id", payload.JobID))
		}

	case "unsubscribe":
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			c.mu.Lock()
			delete(c.subscriptions, payload.JobID)
			c.mu.Unlock()
		}

	case "ping":
		response, _ := json.Marshal(Message{Type: "pong"})
		select {
		case c.send <- response:
		default:
		}
	}
}
