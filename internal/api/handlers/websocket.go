package handlers

import (
	"net/http"

	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/api/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *websocket.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleConnection upgrades HTTP to WebSocket and binds it to the caller's session
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "NO_SESSION", "session required")
		return
	}
	h.hub.HandleConnection(w, r, sessionID)
}
