package service

import (
	"context"
	"testing"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

func TestFavoriteToggleNotifiesSellerOnAdd(t *testing.T) {
	users := newFakeUserRepo(
		domain.User{ID: "B1", Role: domain.UserRoleBuyer, Personal: domain.PersonalDetails{Name: "Meera"}},
		domain.User{ID: "S1", Role: domain.UserRoleSeller},
	)
	dispatcher := events.NewInMemoryDispatcher()
	var favorited []events.ProductFavoritedPayload
	dispatcher.Subscribe(events.EventProductFavorited, func(_ context.Context, e events.Event) error {
		favorited = append(favorited, e.Payload.(events.ProductFavoritedPayload))
		return nil
	})
	svc := NewFavoriteService(FavoriteDependencies{
		FavoriteRepo: newFakeFavoriteRepo(),
		ProductRepo:  newFakeProductRepo(domain.Product{ID: "P1", SellerID: "S1", Name: "Jute bags"}),
		UserRepo:     users,
		Dispatcher:   dispatcher,
		WritePolicy:  testPolicy(),
	})
	ctx := context.Background()

	added, err := svc.Toggle(ctx, "B1", "P1")
	if err != nil || !added {
		t.Fatalf("expected favorite added, got %v %v", added, err)
	}
	added, err = svc.Toggle(ctx, "B1", "P1")
	if err != nil || added {
		t.Fatalf("expected favorite removed, got %v %v", added, err)
	}
	if len(favorited) != 1 || favorited[0].SellerID != "S1" || favorited[0].BuyerName != "Meera" {
		t.Fatalf("expected one favorited event for S1, got %+v", favorited)
	}

	if _, err := svc.Toggle(ctx, "S1", "P1"); apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("expected forbidden for seller, got %v", err)
	}
}

func TestDeviceServiceRegistersTokens(t *testing.T) {
	users := newFakeUserRepo(domain.User{ID: "U1"})
	moderators := newFakeModeratorRepo(domain.Moderator{ID: "O1", Role: domain.ModeratorRoleOperator})
	svc := NewDeviceService(users, moderators, testPolicy())
	ctx := context.Background()

	if err := svc.RegisterToken(ctx, domain.SubjectTypeUser, "U1", " tok-1 "); err != nil {
		t.Fatalf("RegisterToken failed: %v", err)
	}
	if err := svc.RegisterToken(ctx, domain.SubjectTypeModerator, "O1", "tok-2"); err != nil {
		t.Fatalf("RegisterToken failed: %v", err)
	}
	if users.users["U1"].DeviceToken != "tok-1" || moderators.moderators["O1"].DeviceToken != "tok-2" {
		t.Fatalf("tokens not stored")
	}
	if err := svc.RegisterToken(ctx, domain.SubjectTypeUser, "U1", ""); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.RegisterToken(ctx, domain.SubjectTypeUser, "U9", "tok"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
