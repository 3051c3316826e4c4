package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/registry"
	"chat-relay/internal/store"
	"chat-relay/pkg/logger"
)

// Router validates each inbound event, drives the per-connection state
// machine (unauthenticated until a login wins, authenticated for the rest
// of the connection's life), and decides fan-out. Protocol errors go back
// to the originating connection only; malformed frames are logged and
// dropped without tearing the connection down.
type Router struct {
	registry     *registry.Registry
	store        store.MessageStore
	hub          *Hub
	storeTimeout time.Duration
}

func NewRouter(reg *registry.Registry, messages store.MessageStore, hub *Hub, storeTimeout time.Duration) *Router {
	return &Router{
		registry:     reg,
		store:        messages,
		hub:          hub,
		storeTimeout: storeTimeout,
	}
}

// Dispatch handles one raw frame from a connection. It runs on the
// connection's read goroutine, so events from the same connection are
// processed in order.
func (r *Router) Dispatch(c *Client, raw []byte) {
	var ev models.ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Error("Dropping unparseable frame from %s: %v", c.id, err)
		return
	}

	if ev.Type != models.EventLogin && c.username == "" {
		r.sendError(c, "not logged in")
		return
	}

	switch ev.Type {
	case models.EventLogin:
		r.handleLogin(c, &ev)
	case models.EventJoinRoom:
		r.handleJoinRoom(c, &ev)
	case models.EventMessage:
		r.handleMessage(c, &ev)
	case models.EventStatus:
		// The claimed status value is ignored; roster status derives from
		// connection liveness.
		r.broadcastRoster()
	default:
		logger.Error("Dropping frame with unknown type %q from %s", ev.Type, c.id)
	}
}

// HandleDisconnect releases everything the connection held. It runs
// before the read pump returns, so the username is claimable again before
// any later event can observe stale state.
func (r *Router) HandleDisconnect(c *Client) {
	r.registry.Unregister(c.id)
	r.hub.Detach(c.id)
	if c.username != "" {
		logger.Info("User %s disconnected", c.username)
		r.broadcastRoster()
	}
}

func (r *Router) handleLogin(c *Client, ev *models.ClientEvent) {
	if c.username != "" {
		r.sendError(c, "already logged in")
		return
	}

	username := strings.TrimSpace(ev.Username)
	if username == "" {
		r.sendError(c, "username is required")
		return
	}

	if err := r.registry.BindIdentity(c.id, username); err != nil {
		if errors.Is(err, registry.ErrNameTaken) {
			r.sendError(c, "Username already taken")
		} else {
			r.sendError(c, "login failed")
		}
		return
	}

	c.username = username
	logger.Info("User %s logged in", username)
	r.hub.Send(c.id, &models.ServerEvent{Type: models.EventLogin, Success: true})
	r.broadcastRoster()
}

func (r *Router) handleJoinRoom(c *Client, ev *models.ClientEvent) {
	room := strings.TrimSpace(ev.Room)
	if room == "" {
		r.sendError(c, "room is required")
		return
	}

	// History is fetched before the membership change: if the store is
	// unavailable the join must not happen and only the requester hears
	// about it.
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()
	history, err := r.store.History(ctx, room)
	if err != nil {
		logger.Error("History load for room %s failed: %v", room, err)
		r.sendError(c, "message store unavailable")
		return
	}

	if err := r.registry.JoinRoom(c.id, room); err != nil {
		r.sendError(c, "not logged in")
		return
	}

	logger.Info("User %s joined room %s", c.username, room)
	r.hub.Send(c.id, &models.ServerEvent{Type: models.EventJoinedRoom, Room: room})
	r.hub.Send(c.id, &models.ServerEvent{Type: models.EventHistory, Room: room, Messages: history})
}

func (r *Router) handleMessage(c *Client, ev *models.ClientEvent) {
	if ev.Text == "" && ev.File == "" {
		logger.Error("Dropping empty message from %s", c.username)
		return
	}

	if ev.To != "" {
		r.handlePrivateMessage(c, ev)
		return
	}

	room := strings.TrimSpace(ev.Room)
	if room == "" {
		logger.Error("Dropping message without scope from %s", c.username)
		return
	}

	msg := &models.Message{
		Room:      room,
		Username:  c.username,
		Text:      ev.Text,
		File:      ev.File,
		Timestamp: time.Now().UTC(),
	}

	// Best-effort persistence: a store failure is logged and the message
	// is still broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()
	if err := r.store.Append(ctx, msg); err != nil {
		logger.Error("Error persisting message to room %s: %v", room, err)
	}

	// Room messages go to every connected client, not just room members.
	// That matches the observed protocol; clients filter by room.
	r.hub.Broadcast(&models.ServerEvent{
		Type:      models.EventMessage,
		Room:      room,
		Username:  msg.Username,
		Text:      msg.Text,
		File:      msg.File,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
	})
}

func (r *Router) handlePrivateMessage(c *Client, ev *models.ClientEvent) {
	targetID, ok := r.registry.Resolve(ev.To)
	if !ok {
		// Unknown or offline recipient: dropped silently, no error to the
		// sender. Private messages are never persisted.
		logger.Debug("Dropping private message from %s to unknown user %s", c.username, ev.To)
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	r.hub.Send(targetID, &models.ServerEvent{
		Type:      models.EventMessage,
		From:      c.username,
		To:        ev.To,
		Text:      ev.Text,
		File:      ev.File,
		Timestamp: timestamp,
	})

	// Mirror the delivery back so the sender sees the same thread, labeled
	// as if received from the target.
	r.hub.Send(c.id, &models.ServerEvent{
		Type:      models.EventMessage,
		From:      ev.To,
		To:        c.username,
		Text:      ev.Text,
		File:      ev.File,
		Timestamp: timestamp,
	})
}

func (r *Router) broadcastRoster() {
	r.hub.Broadcast(&models.ServerEvent{
		Type:  models.EventUserList,
		Users: r.registry.Roster(),
	})
}

func (r *Router) sendError(c *Client, message string) {
	r.hub.Send(c.id, &models.ServerEvent{Type: models.EventError, Message: message})
}
