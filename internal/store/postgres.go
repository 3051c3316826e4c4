package store

import (
	"context"
	"fmt"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		room       TEXT NOT NULL,
		username   TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		file       TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database, verifies the connection, and
// ensures the message table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (room, username, body, file, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`

	_, err := s.pool.Exec(ctx, query, msg.Room, msg.Username, msg.Text, msg.File, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, room string) ([]*models.Message, error) {
	query := `
		SELECT room, username, body, file, created_at
		FROM messages
		WHERE room = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var file *string
		if err := rows.Scan(&msg.Room, &msg.Username, &msg.Text, &file, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if file != nil {
			msg.File = *file
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return messages, nil
}
