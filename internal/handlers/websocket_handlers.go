package handlers

import (
	"net/http"

	"chat-relay/internal/registry"
	ws "chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	registry *registry.Registry
	hub      *ws.Hub
	router   *ws.Router
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(reg *registry.Registry, hub *ws.Hub, router *ws.Router) *WebSocketHandlers {
	return &WebSocketHandlers{
		registry: reg,
		hub:      hub,
		router:   router,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and wires it into the relay.
// Connections start identity-less; everything else happens through
// protocol events on the socket.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	id := h.registry.Register()
	client := ws.NewClient(id, conn, h.router)
	h.hub.Attach(client)
	logger.Debug("Connection %s accepted from %s", id, conn.RemoteAddr())

	go client.WritePump()
	go client.ReadPump()
}
