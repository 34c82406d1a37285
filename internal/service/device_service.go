package service

import (
	"context"
	"strings"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// DeviceService stores push tokens for users and moderators.
type DeviceService struct {
	users      repository.UserRepository
	moderators repository.ModeratorRepository
	policy     retry.Policy
}

// NewDeviceService constructs the service.
func NewDeviceService(users repository.UserRepository, moderators repository.ModeratorRepository, policy retry.Policy) *DeviceService {
	return &DeviceService{users: users, moderators: moderators, policy: defaultPolicy(policy)}
}

// RegisterToken replaces the subject's device token.
func (s *DeviceService) RegisterToken(ctx context.Context, subject domain.SubjectType, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.NewValidationError("device token required", nil)
	}
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		if subject == domain.SubjectTypeModerator {
			return s.moderators.UpdateDeviceToken(ctx, id, token)
		}
		return s.users.UpdateDeviceToken(ctx, id, token)
	})
	return storeError(err, strings.ToLower(string(subject)), map[string]any{"id": id})
}
