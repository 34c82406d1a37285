package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ProductRepository reads seller listings.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type productRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository constructs a repository.
func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &productRepository{pool: pool}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	const query = `SELECT id, seller_id, name, price, unit, city, created_at FROM products WHERE id=$1`
	var p domain.Product
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Unit, &p.City, &p.CreatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}
