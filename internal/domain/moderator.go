package domain

import "time"

// ModeratorRole enumerates internal operator roles.
type ModeratorRole string

const (
	ModeratorRoleAdmin    ModeratorRole = "ADMIN"
	ModeratorRoleOperator ModeratorRole = "OPERATOR"
)

// Moderator is an Admin or Operator account that approves onboarding and manages tickets.
type Moderator struct {
	ID          string
	Name        string
	Phone       string
	Role        ModeratorRole
	DeviceToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
