package domain

import "time"

// RecipientType identifies which table a notification recipient lives in.
type RecipientType string

const (
	RecipientModerator RecipientType = "MODERATOR"
	RecipientUser      RecipientType = "USER"
)

// NotificationType enumerates business events that produce notifications.
type NotificationType string

const (
	NotificationOnboardingSubmitted NotificationType = "ONBOARDING_SUBMITTED"
	NotificationBuyerAssigned       NotificationType = "BUYER_ASSIGNED"
	NotificationAccountApproved     NotificationType = "ACCOUNT_APPROVED"
	NotificationTicketCreated       NotificationType = "TICKET_CREATED"
	NotificationTicketStatusChanged NotificationType = "TICKET_STATUS_CHANGED"
	NotificationProductFavorited    NotificationType = "PRODUCT_FAVORITED"
)

// Notification is the durable record of a business event for one recipient.
// Only the read state ever changes after creation.
type Notification struct {
	ID            string
	RecipientType RecipientType
	RecipientID   string
	Type          NotificationType
	Title         string
	Body          string
	Message       map[string]any
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}
