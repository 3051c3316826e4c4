package models

import "time"

// Client -> server event types.
const (
	EventLogin    = "login"
	EventJoinRoom = "joinRoom"
	EventMessage  = "message"
	EventStatus   = "status"
)

// Server -> client event types.
const (
	EventError      = "error"
	EventUserList   = "userList"
	EventJoinedRoom = "joinedRoom"
	EventHistory    = "history"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ClientEvent is the decoded form of every frame a client sends.
// Which fields are meaningful depends on Type; File carries binary
// attachments as base64 text, absent means no attachment.
type ClientEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	File     string `json:"file,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ServerEvent is the single envelope for every frame the server sends.
type ServerEvent struct {
	Type      string          `json:"type"`
	Success   bool            `json:"success,omitempty"`
	Message   string          `json:"message,omitempty"`
	Room      string          `json:"room,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Username  string          `json:"username,omitempty"`
	Text      string          `json:"text,omitempty"`
	File      string          `json:"file,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Users     []PresenceEntry `json:"users,omitempty"`
	Messages  []*Message      `json:"messages,omitempty"`
}

// Message is one persisted room message. Timestamps are assigned by the
// server at receipt time, UTC. Private messages never take this form in
// storage; they are delivered and forgotten.
type Message struct {
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	File      string    `json:"file,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceEntry is one roster line: a username that has logged in at some
// point during this process's lifetime and its derived status.
type PresenceEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
