package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
)

// RegisterHandlers subscribes notification fan-out to domain events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventOnboardingSubmitted, n.handleOnboardingSubmitted)
	n.dispatcher.Subscribe(events.EventOnboardingDecided, n.handleOnboardingDecided)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventProductFavorited, n.handleProductFavorited)
}

func (n *NotificationService) handleOnboardingSubmitted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OnboardingSubmittedPayload)
	if !ok {
		return payloadError(event)
	}
	_, err := n.NotifyModerators(ctx, domain.NotificationOnboardingSubmitted, map[string]any{
		"requestId": event.AggregateID,
		"role":      string(payload.Role),
		"name":      payload.Name,
		"phone":     payload.Phone,
		"city":      payload.City,
	})
	return err
}

func (n *NotificationService) handleOnboardingDecided(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OnboardingDecidedPayload)
	if !ok {
		return payloadError(event)
	}
	if payload.Status != domain.OnboardingStatusAccepted || payload.UserID == nil {
		return nil
	}
	userID := *payload.UserID

	if _, err := n.Notify(ctx, domain.RecipientUser, userID, domain.NotificationAccountApproved, map[string]any{
		"requestId": event.AggregateID,
		"userId":    userID,
		"role":      string(payload.Role),
	}); err != nil {
		return err
	}

	if payload.Role != domain.UserRoleBuyer {
		return nil
	}
	operatorID := payload.OperatorID
	if operatorID == "" {
		user, err := n.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		operatorID = user.AssignedOperator
	}
	if operatorID == "" {
		n.logger.Warn("buyer approved without operator", zap.String("user_id", userID))
		return nil
	}
	_, err := n.Notify(ctx, domain.RecipientModerator, operatorID, domain.NotificationBuyerAssigned, map[string]any{
		"userId": userID,
		"name":   payload.Name,
	})
	return err
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return payloadError(event)
	}
	_, err := n.NotifyModerators(ctx, domain.NotificationTicketCreated, map[string]any{
		"ticketId":     event.AggregateID,
		"ticketNumber": payload.Number,
		"productId":    payload.ProductID,
		"productName":  payload.ProductName,
		"buyerId":      payload.BuyerID,
		"buyerName":    payload.BuyerName,
		"sellerId":     payload.SellerID,
		"price":        payload.Price,
	})
	return err
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return payloadError(event)
	}
	_, err := n.Notify(ctx, domain.RecipientUser, payload.BuyerID, domain.NotificationTicketStatusChanged, map[string]any{
		"ticketId":     event.AggregateID,
		"ticketNumber": payload.Number,
		"oldStatus":    string(payload.OldStatus),
		"status":       string(payload.NewStatus),
		"description":  payload.Description,
	})
	return err
}

func (n *NotificationService) handleProductFavorited(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ProductFavoritedPayload)
	if !ok {
		return payloadError(event)
	}
	_, err := n.Notify(ctx, domain.RecipientUser, payload.SellerID, domain.NotificationProductFavorited, map[string]any{
		"productId":   payload.ProductID,
		"productName": payload.ProductName,
		"buyerId":     event.Actor.ID,
		"buyerName":   payload.BuyerName,
	})
	return err
}

func payloadError(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for event %s", event.Payload, event.Type)
}
