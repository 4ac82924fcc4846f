package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"relay-chat/internal/domain"
)

// ChatRepository define el contrato de persistencia para transcripts.
type ChatRepository interface {
	Create(ctx context.Context, chat domain.Chat) error
	GetByID(ctx context.Context, id string) (domain.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Chat, error)
	UpdateMessages(ctx context.Context, id string, messages []domain.ChatMessage) error
	Delete(ctx context.Context, id string) error
}

// PgChatRepository implementa ChatRepository usando pgxpool.
// Los mensajes viven en una columna jsonb: el transcript siempre se lee entero.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

func (r *PgChatRepository) Create(ctx context.Context, chat domain.Chat) error {
	const query = `
		INSERT INTO chats (id, user_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	payload, err := json.Marshal(chat.Messages)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		payload,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	return err
}

func (r *PgChatRepository) GetByID(ctx context.Context, id string) (domain.Chat, error) {
	const query = `
		SELECT id, user_id, title, messages, created_at, updated_at
		FROM chats
		WHERE id = $1
	`
	var c domain.Chat
	var payload []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&payload,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Chat{}, err
	}
	if err := json.Unmarshal(payload, &c.Messages); err != nil {
		return domain.Chat{}, err
	}
	return c, nil
}

func (r *PgChatRepository) ListByUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	const query = `
		SELECT id, user_id, title, messages, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var c domain.Chat
		var payload []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &payload, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &c.Messages); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *PgChatRepository) UpdateMessages(ctx context.Context, id string, messages []domain.ChatMessage) error {
	const query = `UPDATE chats SET messages = $2, updated_at = now() WHERE id = $1`
	payload, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, id, payload)
	return err
}

func (r *PgChatRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM chats WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
