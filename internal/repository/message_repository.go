package repository

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ConstraintMessagePrimaryKey is hit when a retried insert already landed.
const ConstraintMessagePrimaryKey = "messages_pkey"

// MessageRepository stores append-only chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListBetween returns the latest messages exchanged by a and b, oldest first.
	ListBetween(ctx context.Context, a, b string, limit int) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds the Postgres message store.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, sender_id, receiver_id, sent_by, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.ReceiverID,
		msg.SentBy,
		msg.Body,
	).Scan(&msg.CreatedAt)
	return mapErr(err)
}

func (r *messageRepository) ListBetween(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, sender_id, receiver_id, sent_by, body, created_at
        FROM messages
        WHERE LEAST(sender_id, receiver_id) = LEAST($1::text, $2::text)
          AND GREATEST(sender_id, receiver_id) = GREATEST($1::text, $2::text)
        ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, a, b, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.SentBy,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(result)
	return result, nil
}
