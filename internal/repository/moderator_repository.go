package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ModeratorRepository handles admin and operator accounts.
type ModeratorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Moderator, error)
	// ListByRole returns moderators in a stable order: oldest first, then by id.
	ListByRole(ctx context.Context, role domain.ModeratorRole) ([]domain.Moderator, error)
	UpdateDeviceToken(ctx context.Context, id, token string) error
}

type moderatorRepository struct {
	pool *pgxpool.Pool
}

// NewModeratorRepository constructs a repository.
func NewModeratorRepository(pool *pgxpool.Pool) ModeratorRepository {
	return &moderatorRepository{pool: pool}
}

func (r *moderatorRepository) GetByID(ctx context.Context, id string) (*domain.Moderator, error) {
	const query = `
        SELECT id, name, phone, role, device_token, created_at, updated_at
        FROM moderators WHERE id=$1`
	var m domain.Moderator
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Phone, &m.Role, &m.DeviceToken, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *moderatorRepository) ListByRole(ctx context.Context, role domain.ModeratorRole) ([]domain.Moderator, error) {
	const query = `
        SELECT id, name, phone, role, device_token, created_at, updated_at
        FROM moderators WHERE role=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.Moderator
	for rows.Next() {
		var m domain.Moderator
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Role, &m.DeviceToken, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *moderatorRepository) UpdateDeviceToken(ctx context.Context, id, token string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE moderators SET device_token=$1, updated_at=NOW() WHERE id=$2`, token, id)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
