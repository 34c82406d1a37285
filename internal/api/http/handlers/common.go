package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok || p == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

func recipientOf(p *auth.Principal) domain.RecipientType {
	if p.SubjectType == domain.SubjectTypeModerator {
		return domain.RecipientModerator
	}
	return domain.RecipientUser
}

func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// page reads page/page_size query params into limit and offset.
func page(c *fiber.Ctx) (limit, offset int) {
	p := parseInt(c.Query("page"), 1)
	size := parseInt(c.Query("page_size"), 20)
	if size > 100 {
		size = 100
	}
	return size, (p - 1) * size
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
