package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/observability"
	"github.com/spec-kit/marketplace-service/internal/push"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// PushQueue runs push deliveries in the background. Submit never blocks and
// reports false when the task was not accepted.
type PushQueue interface {
	Submit(name string, run func(context.Context) error) bool
}

// NotificationService persists notifications and hands push delivery to a queue.
// A notification is successful once its row is written; delivery outcomes only
// reach logs and metrics.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	moderators    repository.ModeratorRepository
	resolver      RecipientResolver
	provider      push.Provider
	queue         PushQueue
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	policy        retry.Policy
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	ModeratorRepo    repository.ModeratorRepository
	Resolver         RecipientResolver
	Provider         push.Provider
	Queue            PushQueue
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	WritePolicy      retry.Policy
	Logger           *zap.Logger
	Now              func() time.Time
	NewID            func() string
}

// NotificationPage is a recipient's listing with its unread total.
type NotificationPage struct {
	Items       []domain.Notification
	UnreadCount int
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		moderators:    deps.ModeratorRepo,
		resolver:      deps.Resolver,
		provider:      deps.Provider,
		queue:         deps.Queue,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		policy:        defaultPolicy(deps.WritePolicy),
		logger:        nopLogger(deps.Logger),
		now:           clockOrNow(deps.Now),
		newID:         deps.NewID,
	}
	if n.newID == nil {
		n.newID = uuid.NewString
	}
	if n.resolver == nil {
		n.resolver = FirstAdminResolver{Moderators: deps.ModeratorRepo}
	}
	return n
}

// Notify persists a notification for one recipient and schedules a push to the
// recipient's device. Push problems never fail the call.
func (n *NotificationService) Notify(ctx context.Context, recipientType domain.RecipientType, recipientID string, notificationType domain.NotificationType, payload map[string]any) (*domain.Notification, error) {
	if recipientID == "" {
		return nil, apperrors.NewValidationError("recipient id required", nil)
	}
	if recipientType != domain.RecipientModerator && recipientType != domain.RecipientUser {
		return nil, apperrors.NewValidationError("unknown recipient type", map[string]any{"recipient_type": recipientType})
	}

	title, body := renderNotification(notificationType, payload)
	notification := &domain.Notification{
		ID:            n.newID(),
		RecipientType: recipientType,
		RecipientID:   recipientID,
		Type:          notificationType,
		Title:         title,
		Body:          body,
		Message:       payload,
		CreatedAt:     n.now(),
	}

	err := retry.Exec(ctx, n.policy, func(ctx context.Context) error {
		err := n.notifications.Create(ctx, notification)
		// a retried insert whose first attempt landed
		if repository.IsDuplicateOn(err, repository.ConstraintNotificationPrimaryKey) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, storeError(err, "notification", nil)
	}
	n.metrics.RecordNotification()

	n.schedulePush(notification)
	return notification, nil
}

// NotifyModerators notifies the moderators chosen by the recipient resolver.
func (n *NotificationService) NotifyModerators(ctx context.Context, notificationType domain.NotificationType, payload map[string]any) ([]domain.Notification, error) {
	recipients, err := n.resolver.Resolve(ctx, notificationType)
	if err != nil {
		return nil, storeError(err, "moderator", nil)
	}
	if len(recipients) == 0 {
		n.logger.Warn("no moderator to notify", zap.String("type", string(notificationType)))
		return nil, nil
	}

	created := make([]domain.Notification, 0, len(recipients))
	var errs []error
	for _, id := range recipients {
		notification, err := n.Notify(ctx, domain.RecipientModerator, id, notificationType, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, *notification)
	}
	return created, errors.Join(errs...)
}

// List returns a recipient's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, recipientType domain.RecipientType, recipientID string, unreadOnly bool, limit, offset int) (*NotificationPage, error) {
	items, err := n.notifications.ListByRecipient(ctx, recipientType, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, storeError(err, "notification", nil)
	}
	unread, err := n.notifications.CountUnread(ctx, recipientType, recipientID)
	if err != nil {
		return nil, storeError(err, "notification", nil)
	}
	return &NotificationPage{Items: items, UnreadCount: unread}, nil
}

// UnreadCount returns how many notifications the recipient has not read.
func (n *NotificationService) UnreadCount(ctx context.Context, recipientType domain.RecipientType, recipientID string) (int, error) {
	count, err := n.notifications.CountUnread(ctx, recipientType, recipientID)
	if err != nil {
		return 0, storeError(err, "notification", nil)
	}
	return count, nil
}

// MarkRead marks one notification read.
func (n *NotificationService) MarkRead(ctx context.Context, recipientType domain.RecipientType, recipientID, id string) (*domain.Notification, error) {
	return n.SetReadState(ctx, recipientType, recipientID, id, true)
}

// SetReadState toggles the read flag. It is the only mutation a notification sees.
func (n *NotificationService) SetReadState(ctx context.Context, recipientType domain.RecipientType, recipientID, id string, read bool) (*domain.Notification, error) {
	notification, err := retry.Do(ctx, n.policy, func(ctx context.Context) (*domain.Notification, error) {
		return n.notifications.SetReadState(ctx, id, recipientType, recipientID, read, n.now())
	})
	if err != nil {
		return nil, storeError(err, "notification", map[string]any{"notification_id": id})
	}
	return notification, nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (n *NotificationService) MarkAllRead(ctx context.Context, recipientType domain.RecipientType, recipientID string) (int64, error) {
	count, err := retry.Do(ctx, n.policy, func(ctx context.Context) (int64, error) {
		return n.notifications.MarkAllRead(ctx, recipientType, recipientID, n.now())
	})
	if err != nil {
		return 0, storeError(err, "notification", nil)
	}
	return count, nil
}

// SendToDevices pushes directly to tokens and reports per-token outcomes.
func (n *NotificationService) SendToDevices(ctx context.Context, tokens []string, title, body string, data map[string]any) push.BatchResult {
	result, err := n.provider.SendMulticast(ctx, tokens, title, body, push.StringData(data))
	n.logBatch("multicast", result, err)
	return result
}

// SendToTopic pushes to every device subscribed to topic.
func (n *NotificationService) SendToTopic(ctx context.Context, topic, title, body string, data map[string]any) push.BatchResult {
	if err := n.provider.SendToTopic(ctx, topic, title, body, push.StringData(data)); err != nil {
		n.logger.Warn("topic push failed", zap.String("topic", topic), zap.Error(err))
		n.metrics.RecordPush(observability.PushFailed)
		return push.BatchResult{FailureCount: 1}
	}
	n.metrics.RecordPush(observability.PushDelivered)
	return push.BatchResult{SuccessCount: 1}
}

// SubscribeToTopic subscribes tokens to topic.
func (n *NotificationService) SubscribeToTopic(ctx context.Context, tokens []string, topic string) push.BatchResult {
	result, err := n.provider.SubscribeToTopic(ctx, tokens, topic)
	n.logBatch("subscribe "+topic, result, err)
	return result
}

// UnsubscribeFromTopic removes tokens from topic.
func (n *NotificationService) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) push.BatchResult {
	result, err := n.provider.UnsubscribeFromTopic(ctx, tokens, topic)
	n.logBatch("unsubscribe "+topic, result, err)
	return result
}

func (n *NotificationService) logBatch(op string, result push.BatchResult, err error) {
	if err != nil {
		n.logger.Warn("push batch failed", zap.String("op", op), zap.Error(err))
	}
	n.logger.Debug("push batch", zap.String("op", op),
		zap.Int("success", result.SuccessCount), zap.Int("failure", result.FailureCount))
}

func (n *NotificationService) schedulePush(notification *domain.Notification) {
	if n.queue == nil || n.provider == nil {
		return
	}
	snapshot := *notification
	accepted := n.queue.Submit("push:"+snapshot.ID, func(ctx context.Context) error {
		return n.deliver(ctx, &snapshot)
	})
	if !accepted {
		n.metrics.RecordPush(observability.PushDropped)
		n.logger.Warn("push queue full; notification stored without push",
			zap.String("notification_id", snapshot.ID))
	}
}

// deliver runs on the push queue. Its error feeds the queue's error channel.
func (n *NotificationService) deliver(ctx context.Context, notification *domain.Notification) error {
	token, err := n.deviceToken(ctx, notification.RecipientType, notification.RecipientID)
	if err != nil {
		return apperrors.NewDeliveryFailure(err, map[string]any{"notification_id": notification.ID})
	}
	if token == "" {
		n.metrics.RecordPush(observability.PushSkipped)
		return nil
	}

	data := push.StringData(notification.Message)
	data["type"] = string(notification.Type)
	data["notificationId"] = notification.ID
	err = n.provider.Send(ctx, push.Message{
		Token: token,
		Title: notification.Title,
		Body:  notification.Body,
		Data:  data,
	})
	if err != nil {
		return apperrors.NewDeliveryFailure(err, map[string]any{
			"notification_id": notification.ID,
			"recipient_id":    notification.RecipientID,
		})
	}
	n.metrics.RecordPush(observability.PushDelivered)
	return nil
}

func (n *NotificationService) deviceToken(ctx context.Context, recipientType domain.RecipientType, id string) (string, error) {
	switch recipientType {
	case domain.RecipientModerator:
		m, err := n.moderators.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return m.DeviceToken, nil
	default:
		u, err := n.users.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return u.DeviceToken, nil
	}
}

func renderNotification(t domain.NotificationType, payload map[string]any) (string, string) {
	switch t {
	case domain.NotificationOnboardingSubmitted:
		return "New onboarding request", fmt.Sprintf("%v applied as %v", payload["name"], payload["role"])
	case domain.NotificationAccountApproved:
		return "Account approved", "Your marketplace account is ready."
	case domain.NotificationBuyerAssigned:
		return "New buyer assigned", fmt.Sprintf("%v is now assigned to you", payload["name"])
	case domain.NotificationTicketCreated:
		return "New ticket", fmt.Sprintf("Ticket #%v: %v interested in %v", payload["ticketNumber"], payload["buyerName"], payload["productName"])
	case domain.NotificationTicketStatusChanged:
		return "Ticket updated", fmt.Sprintf("Ticket #%v is now %v", payload["ticketNumber"], payload["status"])
	case domain.NotificationProductFavorited:
		return "Product favorited", fmt.Sprintf("%v favorited %v", payload["buyerName"], payload["productName"])
	default:
		return string(t), ""
	}
}
