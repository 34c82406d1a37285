package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

const (
	// ConstraintTicketNumber keeps ticket numbers unique.
	ConstraintTicketNumber = "tickets_number_key"
	// ConstraintTicketPrimaryKey is hit when a retried insert already landed.
	ConstraintTicketPrimaryKey = "tickets_pkey"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	BuyerID  *string
	SellerID *string
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// MaxNumber returns the highest issued ticket number, or 0 when none exist.
	MaxNumber(ctx context.Context) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, product_id, buyer_id, seller_id, snapshot, description, status,
               resolve_timestamp, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, number, product_id, buyer_id, seller_id, snapshot, description, status, resolve_timestamp)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Number,
		ticket.ProductID,
		ticket.BuyerID,
		ticket.SellerID,
		ticket.Snapshot,
		ticket.Description,
		ticket.Status,
		ticket.ResolveTimestamp,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	return mapErr(err)
}

// UpdateStatus writes status, description and resolve timestamp. Snapshot and parties
// are never touched after creation.
func (r *ticketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, description=$2, resolve_timestamp=$3, updated_at=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Description,
		ticket.ResolveTimestamp,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.BuyerID != nil {
		args = append(args, *filter.BuyerID)
		clauses = append(clauses, fmt.Sprintf("buyer_id=$%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		clauses = append(clauses, fmt.Sprintf("seller_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) MaxNumber(ctx context.Context) (int64, error) {
	var max int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM tickets`).Scan(&max)
	return max, mapErr(err)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.ProductID,
		&ticket.BuyerID,
		&ticket.SellerID,
		&ticket.Snapshot,
		&ticket.Description,
		&ticket.Status,
		&ticket.ResolveTimestamp,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
