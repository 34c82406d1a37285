package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ConstraintNotificationPrimaryKey is hit when a retried insert already landed.
const ConstraintNotificationPrimaryKey = "notifications_pkey"

// NotificationRepository stores durable notifications. Rows are never regenerated;
// only read state changes.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientType domain.RecipientType, recipientID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientType domain.RecipientType, recipientID string) (int, error)
	// SetReadState toggles one notification owned by the recipient.
	SetReadState(ctx context.Context, id string, recipientType domain.RecipientType, recipientID string, read bool, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientType domain.RecipientType, recipientID string, at time.Time) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository constructs a repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `id, recipient_type, recipient_id, type, title, body, message, is_read, read_at, created_at`

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, recipient_type, recipient_id, type, title, body, message, is_read, read_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at`
	if n.Message == nil {
		n.Message = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, query,
		n.ID,
		n.RecipientType,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Body,
		n.Message,
		n.IsRead,
		n.ReadAt,
	).Scan(&n.CreatedAt)
	return mapErr(err)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientType domain.RecipientType, recipientID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + notificationColumns + ` FROM notifications
        WHERE recipient_type=$1 AND recipient_id=$2 AND ($3 = FALSE OR is_read = FALSE)
        ORDER BY created_at DESC LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query, recipientType, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientType domain.RecipientType, recipientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_type=$1 AND recipient_id=$2 AND is_read=FALSE`,
		recipientType, recipientID,
	).Scan(&count)
	return count, mapErr(err)
}

func (r *notificationRepository) SetReadState(ctx context.Context, id string, recipientType domain.RecipientType, recipientID string, read bool, at time.Time) (*domain.Notification, error) {
	var readAt *time.Time
	if read {
		readAt = &at
	}
	const query = `
        UPDATE notifications SET is_read=$1, read_at=$2
        WHERE id=$3 AND recipient_type=$4 AND recipient_id=$5
        RETURNING ` + notificationColumns
	n, err := scanNotification(r.pool.QueryRow(ctx, query, read, readAt, id, recipientType, recipientID))
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientType domain.RecipientType, recipientID string, at time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE, read_at=$1 WHERE recipient_type=$2 AND recipient_id=$3 AND is_read=FALSE`,
		at, recipientType, recipientID,
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return cmd.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientType,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Body,
		&n.Message,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
