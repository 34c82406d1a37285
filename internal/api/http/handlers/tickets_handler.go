package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints for buyers and moderators.
type TicketsHandler struct {
	service   *service.TicketService
	favorites *service.FavoriteService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, favoriteService *service.FavoriteService) *TicketsHandler {
	return &TicketsHandler{service: ticketService, favorites: favoriteService}
}

// CreateTicket POST /tickets. The caller is the buyer.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ProductID == "" {
		return apperrors.NewValidationError("product_id required", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), service.CreateTicketInput{
		BuyerID:     p.ID,
		ProductID:   req.ProductID,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets returns the caller's tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	limit, offset := page(c)
	filter := service.TicketListFilter{Limit: limit, Offset: offset}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	tickets, err := h.service.ListForBuyer(c.UserContext(), p.ID, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id. Visible to its buyer, its seller and moderators.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !p.IsModerator() && ticket.BuyerID != p.ID && ticket.SellerID != p.ID {
		return apperrors.NewForbidden("ticket belongs to another user")
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketStatusRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), service.UpdateTicketStatusInput{
		TicketID:    c.Params("id"),
		Status:      req.Status,
		Description: req.Description,
		ActorID:     p.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ToggleFavorite POST /products/:id/favorite.
func (h *TicketsHandler) ToggleFavorite(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	productID := c.Params("id")
	favorited, err := h.favorites.Toggle(c.UserContext(), p.ID, productID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FavoriteResponse{ProductID: productID, Favorited: favorited}})
}
