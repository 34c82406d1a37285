package events

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventOnboardingSubmitted EventType = "onboarding_submitted"
	EventOnboardingDecided   EventType = "onboarding_decided"
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventProductFavorited    EventType = "product_favorited"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.SubjectType `json:"type"`
	ID   string             `json:"id"`
}

// Event represents a domain event emitted after a primary write commits.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	Actor       Actor     `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload"`
}

// OnboardingSubmittedPayload payload.
type OnboardingSubmittedPayload struct {
	Role  domain.UserRole `json:"role"`
	Name  string          `json:"name"`
	Phone string          `json:"phone"`
	City  string          `json:"city,omitempty"`
}

// OnboardingDecidedPayload payload.
type OnboardingDecidedPayload struct {
	Status     domain.OnboardingStatus `json:"status"`
	Role       domain.UserRole         `json:"role"`
	UserID     *string                 `json:"user_id,omitempty"`
	OperatorID string                  `json:"operator_id,omitempty"`
	Name       string                  `json:"name"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number      int64   `json:"number"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	BuyerID     string  `json:"buyer_id"`
	BuyerName   string  `json:"buyer_name"`
	SellerID    string  `json:"seller_id"`
	Price       float64 `json:"price"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Number      int64               `json:"number"`
	BuyerID     string              `json:"buyer_id"`
	OldStatus   domain.TicketStatus `json:"old_status"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	Description string              `json:"description,omitempty"`
}

// ProductFavoritedPayload payload.
type ProductFavoritedPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	SellerID    string `json:"seller_id"`
	BuyerName   string `json:"buyer_name"`
}
