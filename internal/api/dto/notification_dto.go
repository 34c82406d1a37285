package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// NotificationResponse describes a stored notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
	Message   map[string]any          `json:"message"`
	IsRead    bool                    `json:"is_read"`
	ReadAt    *time.Time              `json:"read_at"`
	CreatedAt time.Time               `json:"created_at"`
}

// NotificationListResponse is a page of notifications.
type NotificationListResponse struct {
	Items       []NotificationResponse `json:"items"`
	UnreadCount int                    `json:"unread_count"`
}

// SetReadStateRequest toggles a notification.
type SetReadStateRequest struct {
	Read bool `json:"read"`
}

// RegisterDeviceRequest stores a push token for the caller.
type RegisterDeviceRequest struct {
	Token string `json:"token"`
}

// PushDevicesRequest sends a push directly to device tokens.
type PushDevicesRequest struct {
	Tokens []string       `json:"tokens"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data"`
}

// PushTopicRequest sends a push to a topic.
type PushTopicRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// TopicSubscriptionRequest adds or removes tokens from a topic.
type TopicSubscriptionRequest struct {
	Tokens []string `json:"tokens"`
}

// NewNotificationResponse maps a domain notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Message:   n.Message,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
