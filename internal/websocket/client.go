package websocket

import (
	"time"

	"chat-relay/internal/registry"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client is one live transport session. The username is empty until login
// succeeds and is written only from the connection's own read goroutine,
// which is also the only goroutine that reads it.
type Client struct {
	id       registry.ConnID
	conn     *websocket.Conn
	send     chan []byte
	username string
	router   *Router
}

func NewClient(id registry.ConnID, conn *websocket.Conn, router *Router) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		router: router,
	}
}

// ID returns the connection's registry handle.
func (c *Client) ID() registry.ConnID {
	return c.id
}

// ReadPump consumes inbound frames and hands each one to the router. It
// owns the teardown path: when the transport closes, the connection's
// registry entries are released before the pump returns.
func (c *Client) ReadPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		c.router.Dispatch(c, raw)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
