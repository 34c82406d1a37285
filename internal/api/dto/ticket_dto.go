package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description"`
}

// UpdateTicketStatusRequest payload. Status is checked against the whitelist by the service.
type UpdateTicketStatusRequest struct {
	Status      string  `json:"status"`
	Description *string `json:"description"`
}

// TicketResponse describes a ticket with its creation-time snapshot.
type TicketResponse struct {
	ID               string                `json:"id"`
	Number           int64                 `json:"number"`
	ProductID        string                `json:"product_id"`
	BuyerID          string                `json:"buyer_id"`
	SellerID         string                `json:"seller_id"`
	Snapshot         domain.TicketSnapshot `json:"snapshot"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	ResolveTimestamp *time.Time            `json:"resolve_timestamp"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:               ticket.ID,
		Number:           ticket.Number,
		ProductID:        ticket.ProductID,
		BuyerID:          ticket.BuyerID,
		SellerID:         ticket.SellerID,
		Snapshot:         ticket.Snapshot,
		Description:      ticket.Description,
		Status:           ticket.Status,
		ResolveTimestamp: ticket.ResolveTimestamp,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

// FavoriteResponse reports the favorite state after a toggle.
type FavoriteResponse struct {
	ProductID string `json:"product_id"`
	Favorited bool   `json:"favorited"`
}
