package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/idalloc"
	"github.com/spec-kit/marketplace-service/internal/lifecycle"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

const maxTicketNumberAttempts = 3

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	products   repository.ProductRepository
	users      repository.UserRepository
	numbers    idalloc.Sequence
	dispatcher events.Dispatcher
	policy     retry.Policy
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	ProductRepo repository.ProductRepository
	UserRepo    repository.UserRepository
	Numbers     idalloc.Sequence
	Dispatcher  events.Dispatcher
	WritePolicy retry.Policy
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

// CreateTicketInput describes a buyer's interest in a product.
type CreateTicketInput struct {
	BuyerID     string
	ProductID   string
	Description string
}

// UpdateTicketStatusInput moves a ticket to a new status.
type UpdateTicketStatusInput struct {
	TicketID    string
	Status      string
	Description *string
	ActorID     string
}

// TicketListFilter narrows a buyer's ticket listing.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		products:   deps.ProductRepo,
		users:      deps.UserRepo,
		numbers:    deps.Numbers,
		dispatcher: deps.Dispatcher,
		policy:     defaultPolicy(deps.WritePolicy),
		logger:     nopLogger(deps.Logger),
		now:        clockOrNow(deps.Now),
		newID:      deps.NewID,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Create opens a ticket in InProgress, snapshotting the product and both parties.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if input.BuyerID == "" || input.ProductID == "" {
		return nil, apperrors.NewValidationError("buyer and product are required", nil)
	}
	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, storeError(err, "product", map[string]any{"product_id": input.ProductID})
	}
	buyer, err := s.users.GetByID(ctx, input.BuyerID)
	if err != nil {
		return nil, storeError(err, "buyer", map[string]any{"buyer_id": input.BuyerID})
	}
	seller, err := s.users.GetByID(ctx, product.SellerID)
	if err != nil {
		return nil, storeError(err, "seller", map[string]any{"seller_id": product.SellerID})
	}

	id := s.newID()
	var ticket *domain.Ticket
	for attempt := 0; attempt < maxTicketNumberAttempts; attempt++ {
		number, err := retry.Do(ctx, s.policy, s.numbers.Next)
		if err != nil {
			return nil, apperrors.NewStoreUnavailable(err)
		}
		ticket, err = lifecycle.NewTicket(id, number, product, buyer, seller, input.Description, s.now())
		if err != nil {
			return nil, err
		}
		err = retry.Exec(ctx, s.policy, func(ctx context.Context) error {
			return s.tickets.Create(ctx, ticket)
		})
		if err == nil {
			break
		}
		if repository.IsDuplicateOn(err, repository.ConstraintTicketPrimaryKey) ||
			repository.IsDuplicateOn(err, repository.ConstraintTicketNumber) {
			// an earlier attempt landed under this id
			if stored, getErr := s.tickets.GetByID(ctx, id); getErr == nil {
				ticket = stored
				break
			}
		}
		if repository.IsDuplicateOn(err, repository.ConstraintTicketNumber) {
			s.logger.Warn("ticket number already used; drawing another", zap.Int64("number", number))
			ticket = nil
			continue
		}
		return nil, storeError(err, "ticket", nil)
	}
	if ticket == nil {
		return nil, apperrors.NewInternalError(idalloc.ErrExhausted)
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:        events.EventTicketCreated,
		AggregateID: ticket.ID,
		Actor:       userActor(buyer.ID),
		Payload: events.TicketCreatedPayload{
			Number:      ticket.Number,
			ProductID:   ticket.ProductID,
			ProductName: ticket.Snapshot.ProductName,
			BuyerID:     buyer.ID,
			BuyerName:   buyer.DisplayName(),
			SellerID:    seller.ID,
			Price:       ticket.Snapshot.ProductPrice,
		},
	})
	return ticket, nil
}

// UpdateStatus validates the status against the whitelist and applies it. Terminal
// tickets can still be moved; such moves are logged.
func (s *TicketService) UpdateStatus(ctx context.Context, input UpdateTicketStatusInput) (*domain.Ticket, error) {
	status, err := lifecycle.ParseStatus(input.Status)
	if err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, storeError(err, "ticket", map[string]any{"ticket_id": input.TicketID})
	}

	updated, change := lifecycle.ApplyStatus(ticket, status, input.Description, s.now())
	if change.LeavesTerminal {
		s.logger.Warn("ticket moved out of terminal status",
			zap.String("ticket_id", ticket.ID),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
			zap.String("actor_id", input.ActorID))
	} else if !change.Canonical {
		s.logger.Info("non-standard ticket transition",
			zap.String("ticket_id", ticket.ID),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)))
	}

	err = retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.tickets.UpdateStatus(ctx, updated)
	})
	if err != nil {
		return nil, storeError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:        events.EventTicketStatusChanged,
		AggregateID: updated.ID,
		Actor:       moderatorActor(input.ActorID),
		Payload: events.TicketStatusChangedPayload{
			Number:      updated.Number,
			BuyerID:     updated.BuyerID,
			OldStatus:   change.From,
			NewStatus:   change.To,
			Description: updated.Description,
		},
	})
	return updated, nil
}

// Get returns a ticket by id.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

// ListForBuyer returns a buyer's tickets, newest first.
func (s *TicketService) ListForBuyer(ctx context.Context, buyerID string, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		BuyerID:  &buyerID,
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, storeError(err, "ticket", nil)
	}
	return tickets, nil
}
