// Package store is the persistence boundary for room messages.
package store

import (
	"context"

	"chat-relay/internal/models"
)

// MessageStore appends and replays room-scoped messages. History is
// returned oldest first and is unbounded; the protocol has no pagination.
// Failures are reported to the caller and never retried here.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	History(ctx context.Context, room string) ([]*models.Message, error)
	Close() error
}
