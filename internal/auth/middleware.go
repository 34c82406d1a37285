package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/repository"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	ID          string
	User        *domain.User
	Moderator   *domain.Moderator
}

// IsModerator reports whether the caller is a moderator holding one of roles.
// With no roles any moderator matches.
func (p *Principal) IsModerator(roles ...domain.ModeratorRole) bool {
	if p == nil || p.SubjectType != domain.SubjectTypeModerator || p.Moderator == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if p.Moderator.Role == role {
			return true
		}
	}
	return false
}

// SentBy tells which side of an operator/user chat the principal writes from.
func (p *Principal) SentBy() domain.SentBy {
	if p.IsModerator() {
		return domain.SentByOperator
	}
	return domain.SentByUser
}

// Authenticator resolves bearer tokens into principals.
type Authenticator struct {
	tokens     *TokenManager
	users      repository.UserRepository
	moderators repository.ModeratorRepository
}

// NewAuthenticator constructs an authenticator.
func NewAuthenticator(tokens *TokenManager, users repository.UserRepository, moderators repository.ModeratorRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, moderators: moderators}
}

// Authenticate validates token and loads the subject it names.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.tokens.ParseToken(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil, apperrors.NewUnauthorized("token expired")
	}
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.SubjectType, ID: claims.SubjectID}
	switch claims.SubjectType {
	case domain.SubjectTypeUser:
		user, err := a.users.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewUnauthorized("user not found")
			}
			return nil, apperrors.NewStoreUnavailable(err)
		}
		principal.User = user
	case domain.SubjectTypeModerator:
		moderator, err := a.moderators.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewUnauthorized("moderator not found")
			}
			return nil, apperrors.NewStoreUnavailable(err)
		}
		principal.Moderator = moderator
	default:
		return nil, apperrors.NewUnauthorized("unknown subject")
	}
	return principal, nil
}

// Handle enforces authentication for protected routes.
func (a *Authenticator) Handle(c *fiber.Ctx) error {
	token, err := BearerToken(c.Get("Authorization"))
	if err != nil {
		return err
	}
	principal, err := a.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
