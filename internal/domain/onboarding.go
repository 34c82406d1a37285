package domain

import "time"

// OnboardingStatus enumerates onboarding request lifecycle states.
type OnboardingStatus string

const (
	OnboardingStatusPending  OnboardingStatus = "pending"
	OnboardingStatusAccepted OnboardingStatus = "accepted"
	OnboardingStatusRejected OnboardingStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s OnboardingStatus) Terminal() bool {
	return s == OnboardingStatusAccepted || s == OnboardingStatusRejected
}

// PersonalDetails identifies the applicant.
type PersonalDetails struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ContactDetails holds how to reach the applicant.
type ContactDetails struct {
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

// CompanyDetails describes the applicant's business.
type CompanyDetails struct {
	Name string `json:"name,omitempty"`
	GST  string `json:"gst,omitempty"`
	Type string `json:"type,omitempty"`
}

// OnboardingRequest is a pending application by a prospective buyer or seller.
// It is mutable only while pending.
type OnboardingRequest struct {
	ID         string
	Role       UserRole
	Personal   PersonalDetails
	Contact    ContactDetails
	Company    CompanyDetails
	Status     OnboardingStatus
	AcceptedBy *string
	RejectedBy *string
	DecidedAt  *time.Time
	UserID     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
