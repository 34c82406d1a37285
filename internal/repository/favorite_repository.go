package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// FavoriteRepository stores buyer favorites.
type FavoriteRepository interface {
	// Toggle adds the favorite when absent and removes it when present.
	// It reports whether the favorite exists afterwards.
	Toggle(ctx context.Context, fav *domain.Favorite) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Favorite, error)
}

type favoriteRepository struct {
	pool *pgxpool.Pool
}

// NewFavoriteRepository constructs a repository.
func NewFavoriteRepository(pool *pgxpool.Pool) FavoriteRepository {
	return &favoriteRepository{pool: pool}
}

func (r *favoriteRepository) Toggle(ctx context.Context, fav *domain.Favorite) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM favorites WHERE buyer_id=$1 AND product_id=$2`, fav.BuyerID, fav.ProductID)
	if err != nil {
		return false, mapErr(err)
	}
	if cmd.RowsAffected() > 0 {
		return false, nil
	}
	const insert = `
        INSERT INTO favorites (buyer_id, product_id) VALUES ($1,$2)
        ON CONFLICT (buyer_id, product_id) DO UPDATE SET created_at = favorites.created_at
        RETURNING created_at`
	if err := r.pool.QueryRow(ctx, insert, fav.BuyerID, fav.ProductID).Scan(&fav.CreatedAt); err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

func (r *favoriteRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Favorite, error) {
	rows, err := r.pool.Query(ctx, `SELECT buyer_id, product_id, created_at FROM favorites WHERE buyer_id=$1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.BuyerID, &f.ProductID, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
