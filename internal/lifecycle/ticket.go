package lifecycle

import (
	"strings"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// TicketStatuses is the whitelist accepted by a status update.
var TicketStatuses = []domain.TicketStatus{
	domain.TicketStatusInProgress,
	domain.TicketStatusAcknowledged,
	domain.TicketStatusDealCancel,
	domain.TicketStatusDealComplete,
}

// canonicalTransitions is the documented ticket flow. Updates outside it are still
// accepted; callers use it only to flag unusual moves.
var canonicalTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusInProgress:   {domain.TicketStatusAcknowledged, domain.TicketStatusDealCancel},
	domain.TicketStatusAcknowledged: {domain.TicketStatusDealCancel, domain.TicketStatusDealComplete},
	domain.TicketStatusDealCancel:   {},
	domain.TicketStatusDealComplete: {},
}

// ParseStatus accepts exactly the whitelisted status strings.
func ParseStatus(raw string) (domain.TicketStatus, error) {
	for _, status := range TicketStatuses {
		if string(status) == raw {
			return status, nil
		}
	}
	return "", apperrors.NewConflict(apperrors.CodeInvalidStatus, "invalid ticket status",
		map[string]any{"status": raw, "allowed": TicketStatuses})
}

// IsCanonicalTransition reports whether from -> to follows the documented flow.
func IsCanonicalTransition(from, to domain.TicketStatus) bool {
	if from == to {
		return true
	}
	for _, candidate := range canonicalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NewTicketSnapshot copies the product, buyer and seller details a ticket keeps.
func NewTicketSnapshot(product *domain.Product, buyer, seller *domain.User) domain.TicketSnapshot {
	return domain.TicketSnapshot{
		ProductName:  product.Name,
		ProductPrice: product.Price,
		ProductUnit:  product.Unit,
		Buyer:        partySnapshot(buyer),
		Seller:       partySnapshot(seller),
	}
}

func partySnapshot(u *domain.User) domain.PartySnapshot {
	return domain.PartySnapshot{
		Name:    u.Personal.Name,
		Company: u.Company.Name,
		City:    u.Contact.City,
		Phone:   u.Contact.Phone,
	}
}

// NewTicket opens a ticket in InProgress for buyer's interest in product.
func NewTicket(id string, number int64, product *domain.Product, buyer, seller *domain.User, description string, now time.Time) (*domain.Ticket, error) {
	if buyer.Role != domain.UserRoleBuyer {
		return nil, apperrors.NewValidationError("ticket buyer must have buyer role", map[string]any{"buyer_id": buyer.ID})
	}
	if seller.Role != domain.UserRoleSeller {
		return nil, apperrors.NewValidationError("product seller must have seller role", map[string]any{"seller_id": seller.ID})
	}
	return &domain.Ticket{
		ID:          id,
		Number:      number,
		ProductID:   product.ID,
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		Snapshot:    NewTicketSnapshot(product, buyer, seller),
		Description: strings.TrimSpace(description),
		Status:      domain.TicketStatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// StatusChange describes an applied status update.
type StatusChange struct {
	From           domain.TicketStatus
	To             domain.TicketStatus
	Canonical      bool
	LeavesTerminal bool
}

// ApplyStatus returns a copy of ticket moved to status. ResolveTimestamp is set on
// entering a terminal status and cleared otherwise. Moving out of a terminal status
// is allowed and reported through LeavesTerminal.
func ApplyStatus(ticket *domain.Ticket, status domain.TicketStatus, description *string, now time.Time) (*domain.Ticket, StatusChange) {
	updated := *ticket
	change := StatusChange{
		From:           ticket.Status,
		To:             status,
		Canonical:      IsCanonicalTransition(ticket.Status, status),
		LeavesTerminal: ticket.Status.Terminal() && !status.Terminal(),
	}

	updated.Status = status
	if status.Terminal() {
		resolved := now
		updated.ResolveTimestamp = &resolved
	} else {
		updated.ResolveTimestamp = nil
	}
	if description != nil {
		updated.Description = strings.TrimSpace(*description)
	}
	updated.UpdatedAt = now
	return &updated, change
}
