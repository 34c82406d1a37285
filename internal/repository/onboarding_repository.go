package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ConstraintPendingOnboarding guards one pending request per phone and role.
const ConstraintPendingOnboarding = "onboarding_requests_pending_phone_role_idx"

// OnboardingRepository persists onboarding requests.
type OnboardingRepository interface {
	Create(ctx context.Context, req *domain.OnboardingRequest) error
	GetByID(ctx context.Context, id string) (*domain.OnboardingRequest, error)
	GetPendingByPhoneRole(ctx context.Context, phone string, role domain.UserRole) (*domain.OnboardingRequest, error)
	ListByStatus(ctx context.Context, status domain.OnboardingStatus, limit, offset int) ([]domain.OnboardingRequest, error)
	// CompleteDecision writes the decided fields only if the request is still pending.
	// It returns ErrStateChanged when another decision landed first.
	CompleteDecision(ctx context.Context, req *domain.OnboardingRequest) error
	// ListStranded returns pending requests whose user was created before
	// createdBefore. Younger users may belong to an acceptance still in flight.
	ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]StrandedRequest, error)
}

// StrandedRequest pairs a pending request with the user its acceptance created.
type StrandedRequest struct {
	Request domain.OnboardingRequest
	UserID  string
}

type onboardingRepository struct {
	pool *pgxpool.Pool
}

// NewOnboardingRepository constructs a repository.
func NewOnboardingRepository(pool *pgxpool.Pool) OnboardingRepository {
	return &onboardingRepository{pool: pool}
}

const onboardingColumns = `o.id, o.role, o.personal, o.contact, o.company, o.status, o.accepted_by, o.rejected_by,
               o.decided_at, o.user_id, o.created_at, o.updated_at`

func (r *onboardingRepository) Create(ctx context.Context, req *domain.OnboardingRequest) error {
	const query = `
        INSERT INTO onboarding_requests (id, role, phone, personal, contact, company, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		req.ID,
		req.Role,
		req.Contact.Phone,
		req.Personal,
		req.Contact,
		req.Company,
		req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	return mapErr(err)
}

func (r *onboardingRepository) GetByID(ctx context.Context, id string) (*domain.OnboardingRequest, error) {
	req, err := scanOnboarding(r.pool.QueryRow(ctx, `SELECT `+onboardingColumns+` FROM onboarding_requests o WHERE o.id=$1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return req, nil
}

func (r *onboardingRepository) GetPendingByPhoneRole(ctx context.Context, phone string, role domain.UserRole) (*domain.OnboardingRequest, error) {
	const query = `SELECT ` + onboardingColumns + ` FROM onboarding_requests o
        WHERE o.phone=$1 AND o.role=$2 AND o.status='pending'`
	req, err := scanOnboarding(r.pool.QueryRow(ctx, query, phone, role))
	if err != nil {
		return nil, mapErr(err)
	}
	return req, nil
}

func (r *onboardingRepository) ListByStatus(ctx context.Context, status domain.OnboardingStatus, limit, offset int) ([]domain.OnboardingRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + onboardingColumns + ` FROM onboarding_requests o
        WHERE o.status=$1 ORDER BY o.created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.OnboardingRequest
	for rows.Next() {
		req, err := scanOnboarding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func (r *onboardingRepository) CompleteDecision(ctx context.Context, req *domain.OnboardingRequest) error {
	const query = `
        UPDATE onboarding_requests
        SET status=$1, accepted_by=$2, rejected_by=$3, decided_at=$4, user_id=$5, updated_at=NOW()
        WHERE id=$6 AND status='pending'
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		req.Status,
		req.AcceptedBy,
		req.RejectedBy,
		req.DecidedAt,
		req.UserID,
		req.ID,
	).Scan(&req.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != pgx.ErrNoRows {
		return mapErr(err)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM onboarding_requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateChanged
}

func (r *onboardingRepository) ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]StrandedRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + onboardingColumns + `, u.id FROM onboarding_requests o
        JOIN users u ON u.onboarding_request_id = o.id
        WHERE o.status='pending' AND u.created_at < $1
        ORDER BY o.created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []StrandedRequest
	for rows.Next() {
		var (
			s      StrandedRequest
			userID string
		)
		if err := rows.Scan(append(onboardingDest(&s.Request), &userID)...); err != nil {
			return nil, err
		}
		s.UserID = userID
		result = append(result, s)
	}
	return result, rows.Err()
}

func onboardingDest(req *domain.OnboardingRequest) []any {
	return []any{
		&req.ID,
		&req.Role,
		&req.Personal,
		&req.Contact,
		&req.Company,
		&req.Status,
		&req.AcceptedBy,
		&req.RejectedBy,
		&req.DecidedAt,
		&req.UserID,
		&req.CreatedAt,
		&req.UpdatedAt,
	}
}

func scanOnboarding(row pgx.Row) (*domain.OnboardingRequest, error) {
	var req domain.OnboardingRequest
	if err := row.Scan(onboardingDest(&req)...); err != nil {
		return nil, err
	}
	return &req, nil
}
