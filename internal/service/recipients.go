package service

import (
	"context"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/repository"
)

// RecipientResolver picks the moderators a notification type goes to.
type RecipientResolver interface {
	Resolve(ctx context.Context, notificationType domain.NotificationType) ([]string, error)
}

// RecipientResolverFunc adapts a function to RecipientResolver.
type RecipientResolverFunc func(ctx context.Context, notificationType domain.NotificationType) ([]string, error)

func (f RecipientResolverFunc) Resolve(ctx context.Context, notificationType domain.NotificationType) ([]string, error) {
	return f(ctx, notificationType)
}

// FirstAdminResolver sends every moderator notification to exactly one admin: the
// oldest account, ties broken by id. Other admins receive nothing.
type FirstAdminResolver struct {
	Moderators repository.ModeratorRepository
}

func (r FirstAdminResolver) Resolve(ctx context.Context, _ domain.NotificationType) ([]string, error) {
	admins, err := r.Moderators.ListByRole(ctx, domain.ModeratorRoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, nil
	}
	return []string{admins[0].ID}, nil
}

// AllAdminsResolver broadcasts moderator notifications to every admin.
type AllAdminsResolver struct {
	Moderators repository.ModeratorRepository
}

func (r AllAdminsResolver) Resolve(ctx context.Context, _ domain.NotificationType) ([]string, error) {
	admins, err := r.Moderators.ListByRole(ctx, domain.ModeratorRoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	return ids, nil
}

// NewRecipientResolver maps a configured policy name to a resolver. Unknown names
// fall back to first_admin.
func NewRecipientResolver(policy string, moderators repository.ModeratorRepository) RecipientResolver {
	if policy == "all_admins" {
		return AllAdminsResolver{Moderators: moderators}
	}
	return FirstAdminResolver{Moderators: moderators}
}
