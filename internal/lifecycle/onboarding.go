// Package lifecycle holds the pure transition logic for onboarding requests and
// tickets. Nothing here touches a store.
package lifecycle

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

var (
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	gstPattern   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
)

// NormalizePhone strips formatting and an optional +91/0 prefix.
func NormalizePhone(raw string) string {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+91")
	if len(phone) == 11 && strings.HasPrefix(phone, "0") {
		phone = phone[1:]
	}
	return phone
}

// Submission is the applicant-provided part of an onboarding request.
type Submission struct {
	Role     domain.UserRole
	Personal domain.PersonalDetails
	Contact  domain.ContactDetails
	Company  domain.CompanyDetails
}

// Normalize trims fields and canonicalizes the phone and GST number.
func (s Submission) Normalize() Submission {
	s.Role = domain.UserRole(strings.ToLower(strings.TrimSpace(string(s.Role))))
	s.Personal.Name = strings.TrimSpace(s.Personal.Name)
	s.Personal.Email = strings.TrimSpace(s.Personal.Email)
	s.Contact.Phone = NormalizePhone(s.Contact.Phone)
	s.Contact.City = strings.TrimSpace(s.Contact.City)
	s.Company.Name = strings.TrimSpace(s.Company.Name)
	s.Company.GST = strings.ToUpper(strings.TrimSpace(s.Company.GST))
	return s
}

// ValidateSubmission checks required personal/contact fields and formats.
func ValidateSubmission(s Submission) error {
	details := map[string]any{}
	if !s.Role.Valid() {
		details["role"] = "must be buyer or seller"
	}
	if s.Personal.Name == "" {
		details["personal.name"] = "required"
	}
	if s.Personal.Email != "" {
		if _, err := mail.ParseAddress(s.Personal.Email); err != nil {
			details["personal.email"] = "invalid email"
		}
	}
	switch {
	case s.Contact.Phone == "":
		details["contact.phone"] = "required"
	case !phonePattern.MatchString(s.Contact.Phone):
		details["contact.phone"] = "must be a 10 digit mobile number"
	}
	if s.Company.GST != "" && !gstPattern.MatchString(s.Company.GST) {
		details["company.gst"] = "invalid GST number"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid onboarding request", details)
	}
	return nil
}

// NewOnboardingRequest builds a pending request from a validated submission.
func NewOnboardingRequest(id string, s Submission, now time.Time) *domain.OnboardingRequest {
	return &domain.OnboardingRequest{
		ID:        id,
		Role:      s.Role,
		Personal:  s.Personal,
		Contact:   s.Contact,
		Company:   s.Company,
		Status:    domain.OnboardingStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DecideParams carries a moderator's decision.
type DecideParams struct {
	Decision   domain.OnboardingStatus
	AdminID    string
	OperatorID string
	Now        time.Time
}

// Decision is the computed result of deciding a pending request.
type Decision struct {
	Status      domain.OnboardingStatus
	AcceptedBy  *string
	RejectedBy  *string
	DecidedAt   time.Time
	CreatesUser bool
	OperatorID  string
}

// Decide validates a decision against the request's current state. Only pending
// requests can be decided; accepted and rejected are terminal.
func Decide(req *domain.OnboardingRequest, p DecideParams) (Decision, error) {
	if req.Status != domain.OnboardingStatusPending {
		return Decision{}, apperrors.NewConflict(apperrors.CodeAlreadyProcessed, "onboarding request already processed",
			map[string]any{"request_id": req.ID, "status": req.Status})
	}
	if strings.TrimSpace(p.AdminID) == "" {
		return Decision{}, apperrors.NewValidationError("admin id required", nil)
	}

	adminID := p.AdminID
	switch p.Decision {
	case domain.OnboardingStatusRejected:
		return Decision{
			Status:     domain.OnboardingStatusRejected,
			RejectedBy: &adminID,
			DecidedAt:  p.Now,
		}, nil
	case domain.OnboardingStatusAccepted:
		operator := strings.TrimSpace(p.OperatorID)
		if req.Role == domain.UserRoleBuyer && operator == "" {
			return Decision{}, apperrors.NewValidationError("assigned operator required for buyers", nil)
		}
		if req.Role == domain.UserRoleSeller {
			operator = ""
		}
		return Decision{
			Status:      domain.OnboardingStatusAccepted,
			AcceptedBy:  &adminID,
			DecidedAt:   p.Now,
			CreatesUser: true,
			OperatorID:  operator,
		}, nil
	default:
		return Decision{}, apperrors.NewValidationError("decision must be accepted or rejected",
			map[string]any{"decision": p.Decision})
	}
}

// Apply returns a copy of req with the decision's fields set.
func (d Decision) Apply(req *domain.OnboardingRequest, userID *string) *domain.OnboardingRequest {
	updated := *req
	updated.Status = d.Status
	updated.AcceptedBy = d.AcceptedBy
	updated.RejectedBy = d.RejectedBy
	decidedAt := d.DecidedAt
	updated.DecidedAt = &decidedAt
	updated.UserID = userID
	updated.UpdatedAt = d.DecidedAt
	return &updated
}

// NewUserFromRequest builds the User an accepted request spawns. The request id is
// kept on the user as its creation key.
func NewUserFromRequest(req *domain.OnboardingRequest, userID, operatorID string, now time.Time) *domain.User {
	requestID := req.ID
	user := &domain.User{
		ID:                  userID,
		Role:                req.Role,
		Personal:            req.Personal,
		Contact:             req.Contact,
		Company:             req.Company,
		OnboardingRequestID: &requestID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Role == domain.UserRoleBuyer {
		user.AssignedOperator = operatorID
	}
	return user
}
