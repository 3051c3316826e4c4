package store

import (
	"context"
	"sync"

	"chat-relay/internal/models"
)

// MemoryStore keeps messages in per-room slices in insertion order. It is
// used by tests and as a fallback when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string][]*models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]*models.Message)}
}

func (s *MemoryStore) Append(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	s.rooms[msg.Room] = append(s.rooms[msg.Room], &stored)
	return nil
}

func (s *MemoryStore) History(_ context.Context, room string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.rooms[room]
	messages := make([]*models.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
