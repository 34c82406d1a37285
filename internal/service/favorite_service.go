package service

import (
	"context"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// FavoriteService lets buyers mark products without opening a ticket.
type FavoriteService struct {
	favorites  repository.FavoriteRepository
	products   repository.ProductRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	policy     retry.Policy
	now        func() time.Time
}

// FavoriteDependencies bundles collaborators for the favorite service.
type FavoriteDependencies struct {
	FavoriteRepo repository.FavoriteRepository
	ProductRepo  repository.ProductRepository
	UserRepo     repository.UserRepository
	Dispatcher   events.Dispatcher
	WritePolicy  retry.Policy
	Now          func() time.Time
}

// NewFavoriteService constructs the service.
func NewFavoriteService(deps FavoriteDependencies) *FavoriteService {
	return &FavoriteService{
		favorites:  deps.FavoriteRepo,
		products:   deps.ProductRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		policy:     defaultPolicy(deps.WritePolicy),
		now:        clockOrNow(deps.Now),
	}
}

// Toggle flips the buyer's favorite on a product and reports whether it is now set.
// The seller is notified only when a favorite is added.
func (s *FavoriteService) Toggle(ctx context.Context, buyerID, productID string) (bool, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return false, storeError(err, "product", map[string]any{"product_id": productID})
	}
	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil {
		return false, storeError(err, "buyer", map[string]any{"buyer_id": buyerID})
	}
	if buyer.Role != domain.UserRoleBuyer {
		return false, apperrors.NewForbidden("only buyers can favorite products")
	}

	fav := &domain.Favorite{BuyerID: buyerID, ProductID: productID, CreatedAt: s.now()}
	added, err := retry.Do(ctx, s.policy, func(ctx context.Context) (bool, error) {
		return s.favorites.Toggle(ctx, fav)
	})
	if err != nil {
		return false, storeError(err, "favorite", nil)
	}
	if added {
		publish(ctx, s.dispatcher, events.Event{
			Type:        events.EventProductFavorited,
			AggregateID: product.ID,
			Actor:       userActor(buyerID),
			Payload: events.ProductFavoritedPayload{
				ProductID:   product.ID,
				ProductName: product.Name,
				SellerID:    product.SellerID,
				BuyerName:   buyer.DisplayName(),
			},
		})
	}
	return added, nil
}
