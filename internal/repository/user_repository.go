package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// Unique constraints on users the services react to.
const (
	ConstraintUserPhoneRole         = "users_phone_role_key"
	ConstraintUserOnboardingRequest = "users_onboarding_request_id_key"
	ConstraintUserPrimaryKey        = "users_pkey"
)

// UserRepository defines persistence access for buyers and sellers.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByPhoneRole(ctx context.Context, phone string, role domain.UserRole) (*domain.User, error)
	GetByOnboardingRequest(ctx context.Context, requestID string) (*domain.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	UpdateDeviceToken(ctx context.Context, id, token string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, role, personal, contact, company, assigned_operator, device_token,
               onboarding_request_id, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, role, phone, personal, contact, company, assigned_operator, device_token, onboarding_request_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Role,
		user.Contact.Phone,
		user.Personal,
		user.Contact,
		user.Company,
		nullable(user.AssignedOperator),
		user.DeviceToken,
		user.OnboardingRequestID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return mapErr(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByPhoneRole(ctx context.Context, phone string, role domain.UserRole) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE phone=$1 AND role=$2`, phone, role)
}

func (r *userRepository) GetByOnboardingRequest(ctx context.Context, requestID string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE onboarding_request_id=$1`, requestID)
}

func (r *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, id).Scan(&exists)
	return exists, mapErr(err)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateDeviceToken(ctx context.Context, id, token string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET device_token=$1, updated_at=NOW() WHERE id=$2`, token, id)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		operator *string
	)
	if err := row.Scan(
		&user.ID,
		&user.Role,
		&user.Personal,
		&user.Contact,
		&user.Company,
		&operator,
		&user.DeviceToken,
		&user.OnboardingRequestID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.AssignedOperator = deref(operator)
	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
