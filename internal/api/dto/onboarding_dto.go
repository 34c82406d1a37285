package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// SubmitOnboardingRequest payload.
type SubmitOnboardingRequest struct {
	Role     domain.UserRole        `json:"role"`
	Personal domain.PersonalDetails `json:"personal"`
	Contact  domain.ContactDetails  `json:"contact"`
	Company  domain.CompanyDetails  `json:"company"`
}

// DecideOnboardingRequest payload. OperatorID is required when accepting a buyer.
type DecideOnboardingRequest struct {
	Decision   domain.OnboardingStatus `json:"decision"`
	OperatorID string                  `json:"operator_id"`
}

// OnboardingResponse describes a request.
type OnboardingResponse struct {
	ID         string                  `json:"id"`
	Role       domain.UserRole         `json:"role"`
	Personal   domain.PersonalDetails  `json:"personal"`
	Contact    domain.ContactDetails   `json:"contact"`
	Company    domain.CompanyDetails   `json:"company"`
	Status     domain.OnboardingStatus `json:"status"`
	AcceptedBy *string                 `json:"accepted_by,omitempty"`
	RejectedBy *string                 `json:"rejected_by,omitempty"`
	DecidedAt  *time.Time              `json:"decided_at,omitempty"`
	UserID     *string                 `json:"user_id,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// UserResponse describes a buyer or seller.
type UserResponse struct {
	ID               string                 `json:"id"`
	Role             domain.UserRole        `json:"role"`
	Personal         domain.PersonalDetails `json:"personal"`
	Contact          domain.ContactDetails  `json:"contact"`
	Company          domain.CompanyDetails  `json:"company"`
	AssignedOperator string                 `json:"assigned_operator,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// DecideOnboardingResponse carries the decided request and any created user.
type DecideOnboardingResponse struct {
	Request OnboardingResponse `json:"request"`
	User    *UserResponse      `json:"user,omitempty"`
}

// NewOnboardingResponse maps a domain request.
func NewOnboardingResponse(req *domain.OnboardingRequest) OnboardingResponse {
	return OnboardingResponse{
		ID:         req.ID,
		Role:       req.Role,
		Personal:   req.Personal,
		Contact:    req.Contact,
		Company:    req.Company,
		Status:     req.Status,
		AcceptedBy: req.AcceptedBy,
		RejectedBy: req.RejectedBy,
		DecidedAt:  req.DecidedAt,
		UserID:     req.UserID,
		CreatedAt:  req.CreatedAt,
	}
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:               user.ID,
		Role:             user.Role,
		Personal:         user.Personal,
		Contact:          user.Contact,
		Company:          user.Company,
		AssignedOperator: user.AssignedOperator,
		CreatedAt:        user.CreatedAt,
	}
}
