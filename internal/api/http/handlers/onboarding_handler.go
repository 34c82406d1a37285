package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/service"
)

// OnboardingHandler exposes the onboarding workflow.
type OnboardingHandler struct {
	service *service.OnboardingService
}

// NewOnboardingHandler constructs handler.
func NewOnboardingHandler(onboardingService *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: onboardingService}
}

// Submit POST /onboarding. Public: applicants have no account yet.
func (h *OnboardingHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitOnboardingRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	created, err := h.service.Submit(c.UserContext(), service.SubmitOnboardingInput{
		Role:     req.Role,
		Personal: req.Personal,
		Contact:  req.Contact,
		Company:  req.Company,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewOnboardingResponse(created)})
}

// ListPending GET /onboarding.
func (h *OnboardingHandler) ListPending(c *fiber.Ctx) error {
	limit, offset := page(c)
	reqs, err := h.service.ListPending(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.OnboardingResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewOnboardingResponse(&reqs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /onboarding/:id.
func (h *OnboardingHandler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOnboardingResponse(req)})
}

// Decide POST /onboarding/:id/decision. The deciding admin is the caller.
func (h *OnboardingHandler) Decide(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.DecideOnboardingRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result, err := h.service.Decide(c.UserContext(), service.DecideOnboardingInput{
		RequestID:  c.Params("id"),
		Decision:   req.Decision,
		AdminID:    p.ID,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		return err
	}
	resp := dto.DecideOnboardingResponse{Request: dto.NewOnboardingResponse(result.Request)}
	if result.User != nil {
		user := dto.NewUserResponse(result.User)
		resp.User = &user
	}
	return c.JSON(fiber.Map{"data": resp})
}
