package domain

import "time"

// UserRole is the marketplace side a user trades on.
type UserRole string

const (
	UserRoleBuyer  UserRole = "buyer"
	UserRoleSeller UserRole = "seller"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleBuyer || r == UserRoleSeller
}

// User is a buyer or seller. AssignedOperator is a weak reference to a Moderator:
// required for buyers, empty for sellers.
type User struct {
	ID                  string
	Role                UserRole
	Personal            PersonalDetails
	Contact             ContactDetails
	Company             CompanyDetails
	AssignedOperator    string
	DeviceToken         string
	OnboardingRequestID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DisplayName is the name shown to chat counterparts.
func (u *User) DisplayName() string {
	if u.Company.Name != "" && u.Personal.Name == "" {
		return u.Company.Name
	}
	return u.Personal.Name
}
