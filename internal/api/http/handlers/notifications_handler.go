package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// NotificationsHandler serves the caller's notifications, device tokens and
// admin push tools.
type NotificationsHandler struct {
	notifications *service.NotificationService
	devices       *service.DeviceService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService, deviceService *service.DeviceService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notificationService, devices: deviceService}
}

// List GET /notifications?unread=true.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	limit, offset := page(c)
	result, err := h.notifications.List(c.UserContext(), recipientOf(p), p.ID, c.QueryBool("unread"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, dto.NewNotificationResponse(&result.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.NotificationListResponse{Items: items, UnreadCount: result.UnreadCount}})
}

// UnreadCount GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCount(c.UserContext(), recipientOf(p), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"unread_count": count}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkRead(c.UserContext(), recipientOf(p), p.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNotificationResponse(n)})
}

// SetReadState PATCH /notifications/:id.
func (h *NotificationsHandler) SetReadState(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.SetReadStateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	n, err := h.notifications.SetReadState(c.UserContext(), recipientOf(p), p.ID, c.Params("id"), req.Read)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNotificationResponse(n)})
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.MarkAllRead(c.UserContext(), recipientOf(p), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": count}})
}

// RegisterDevice PUT /devices/token.
func (h *NotificationsHandler) RegisterDevice(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RegisterDeviceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := h.devices.RegisterToken(c.UserContext(), p.SubjectType, p.ID, req.Token); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PushDevices POST /admin/push/devices.
func (h *NotificationsHandler) PushDevices(c *fiber.Ctx) error {
	var req dto.PushDevicesRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if len(req.Tokens) == 0 {
		return apperrors.NewValidationError("tokens required", nil)
	}
	result := h.notifications.SendToDevices(c.UserContext(), req.Tokens, req.Title, req.Body, req.Data)
	return c.JSON(fiber.Map{"data": result})
}

// PushTopic POST /admin/push/topics/:topic.
func (h *NotificationsHandler) PushTopic(c *fiber.Ctx) error {
	var req dto.PushTopicRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result := h.notifications.SendToTopic(c.UserContext(), c.Params("topic"), req.Title, req.Body, req.Data)
	return c.JSON(fiber.Map{"data": result})
}

// SubscribeTopic POST /admin/push/topics/:topic/subscribers.
func (h *NotificationsHandler) SubscribeTopic(c *fiber.Ctx) error {
	var req dto.TopicSubscriptionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result := h.notifications.SubscribeToTopic(c.UserContext(), req.Tokens, c.Params("topic"))
	return c.JSON(fiber.Map{"data": result})
}

// UnsubscribeTopic DELETE /admin/push/topics/:topic/subscribers.
func (h *NotificationsHandler) UnsubscribeTopic(c *fiber.Ctx) error {
	var req dto.TopicSubscriptionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result := h.notifications.UnsubscribeFromTopic(c.UserContext(), req.Tokens, c.Params("topic"))
	return c.JSON(fiber.Map{"data": result})
}
