package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ChatHistoryRepository keeps exactly one summary row per (operator, user) pair.
type ChatHistoryRepository interface {
	// Touch records an interaction: it inserts the pair's row or updates the
	// existing one in a single statement. An interaction older than the stored
	// one leaves the row as it is.
	Touch(ctx context.Context, h *domain.ChatHistory) error
	// Ensure creates the pair's row if missing and returns it unchanged otherwise.
	Ensure(ctx context.Context, h *domain.ChatHistory) error
	ListForParticipant(ctx context.Context, participantID string) ([]domain.ChatSummary, error)
	MarkRead(ctx context.Context, operatorID, userID string) error
}

type chatHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewChatHistoryRepository constructs a repository.
func NewChatHistoryRepository(pool *pgxpool.Pool) ChatHistoryRepository {
	return &chatHistoryRepository{pool: pool}
}

const chatHistoryColumns = `id, operator_id, user_id, last_message, last_interaction, read_status, created_at`

func (r *chatHistoryRepository) Touch(ctx context.Context, h *domain.ChatHistory) error {
	const query = `
        INSERT INTO chat_histories (id, operator_id, user_id, last_message, last_interaction, read_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (operator_id, user_id) DO UPDATE
        SET last_message=CASE WHEN EXCLUDED.last_interaction >= chat_histories.last_interaction
                THEN EXCLUDED.last_message ELSE chat_histories.last_message END,
            read_status=CASE WHEN EXCLUDED.last_interaction >= chat_histories.last_interaction
                THEN EXCLUDED.read_status ELSE chat_histories.read_status END,
            last_interaction=GREATEST(chat_histories.last_interaction, EXCLUDED.last_interaction)
        RETURNING ` + chatHistoryColumns
	return r.upsert(ctx, query, h)
}

func (r *chatHistoryRepository) Ensure(ctx context.Context, h *domain.ChatHistory) error {
	const query = `
        INSERT INTO chat_histories (id, operator_id, user_id, last_message, last_interaction, read_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (operator_id, user_id) DO UPDATE SET operator_id=chat_histories.operator_id
        RETURNING ` + chatHistoryColumns
	return r.upsert(ctx, query, h)
}

func (r *chatHistoryRepository) upsert(ctx context.Context, query string, h *domain.ChatHistory) error {
	row := r.pool.QueryRow(ctx, query,
		h.ID,
		h.OperatorID,
		h.UserID,
		h.LastMessage,
		h.LastInteraction,
		h.ReadStatus,
	)
	stored, err := scanChatHistory(row)
	if err != nil {
		return mapErr(err)
	}
	*h = *stored
	return nil
}

func (r *chatHistoryRepository) ListForParticipant(ctx context.Context, participantID string) ([]domain.ChatSummary, error) {
	const query = `
        SELECT h.id, h.operator_id, h.user_id, h.last_message, h.last_interaction, h.read_status, h.created_at,
               CASE WHEN h.operator_id = $1 THEN COALESCE(u.personal->>'name', u.company->>'name', '')
                    ELSE COALESCE(m.name, '') END
        FROM chat_histories h
        LEFT JOIN users u ON u.id = h.user_id
        LEFT JOIN moderators m ON m.id = h.operator_id
        WHERE h.operator_id = $1 OR h.user_id = $1
        ORDER BY h.last_interaction DESC`
	rows, err := r.pool.Query(ctx, query, participantID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.ChatSummary
	for rows.Next() {
		var (
			s    domain.ChatSummary
			name string
		)
		if err := rows.Scan(
			&s.History.ID,
			&s.History.OperatorID,
			&s.History.UserID,
			&s.History.LastMessage,
			&s.History.LastInteraction,
			&s.History.ReadStatus,
			&s.History.CreatedAt,
			&name,
		); err != nil {
			return nil, err
		}
		s.CounterpartName = name
		if s.History.OperatorID == participantID {
			s.CounterpartID = s.History.UserID
		} else {
			s.CounterpartID = s.History.OperatorID
			s.CounterpartIsOps = true
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *chatHistoryRepository) MarkRead(ctx context.Context, operatorID, userID string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE chat_histories SET read_status=TRUE WHERE operator_id=$1 AND user_id=$2`,
		operatorID, userID,
	)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChatHistory(row pgx.Row) (*domain.ChatHistory, error) {
	var h domain.ChatHistory
	if err := row.Scan(
		&h.ID,
		&h.OperatorID,
		&h.UserID,
		&h.LastMessage,
		&h.LastInteraction,
		&h.ReadStatus,
		&h.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &h, nil
}
