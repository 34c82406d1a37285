package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/idalloc"
	"github.com/spec-kit/marketplace-service/internal/lifecycle"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// User ids are drawn from this range unless overridden.
const (
	DefaultUserIDMin int64 = 100000
	DefaultUserIDMax int64 = 999999
)

// maxUserIDAttempts bounds re-allocation when an insert loses the primary key race.
const maxUserIDAttempts = 5

// OnboardingService runs the onboarding approval workflow.
type OnboardingService struct {
	requests   repository.OnboardingRepository
	users      repository.UserRepository
	moderators repository.ModeratorRepository
	allocator  *idalloc.Allocator
	dispatcher events.Dispatcher
	policy     retry.Policy
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	idMin      int64
	idMax      int64
}

// OnboardingDependencies bundles collaborators for the onboarding service.
type OnboardingDependencies struct {
	RequestRepo   repository.OnboardingRepository
	UserRepo      repository.UserRepository
	ModeratorRepo repository.ModeratorRepository
	Dispatcher    events.Dispatcher
	WritePolicy   retry.Policy
	Logger        *zap.Logger
	// Allocator defaults to one checking UserRepo.
	Allocator *idalloc.Allocator
	UserIDMin int64
	UserIDMax int64
	Now       func() time.Time
	NewID     func() string
}

// SubmitOnboardingInput is an applicant's signup.
type SubmitOnboardingInput struct {
	Role     domain.UserRole
	Personal domain.PersonalDetails
	Contact  domain.ContactDetails
	Company  domain.CompanyDetails
}

// DecideOnboardingInput is a moderator's decision on a pending request.
type DecideOnboardingInput struct {
	RequestID  string
	Decision   domain.OnboardingStatus
	AdminID    string
	OperatorID string
}

// DecideResult carries the decided request and, on acceptance, the created user.
type DecideResult struct {
	Request *domain.OnboardingRequest
	User    *domain.User
}

// NewOnboardingService constructs the service.
func NewOnboardingService(deps OnboardingDependencies) *OnboardingService {
	s := &OnboardingService{
		requests:   deps.RequestRepo,
		users:      deps.UserRepo,
		moderators: deps.ModeratorRepo,
		allocator:  deps.Allocator,
		dispatcher: deps.Dispatcher,
		policy:     defaultPolicy(deps.WritePolicy),
		logger:     nopLogger(deps.Logger),
		now:        clockOrNow(deps.Now),
		newID:      deps.NewID,
		idMin:      deps.UserIDMin,
		idMax:      deps.UserIDMax,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.idMin == 0 && s.idMax == 0 {
		s.idMin, s.idMax = DefaultUserIDMin, DefaultUserIDMax
	}
	if s.allocator == nil {
		s.allocator = idalloc.NewAllocator(idalloc.CheckerFunc(func(ctx context.Context, id int64) (bool, error) {
			return s.users.Exists(ctx, strconv.FormatInt(id, 10))
		}))
	}
	return s
}

// Submit validates and records a pending onboarding request. A phone and role pair
// may have at most one pending request and no existing user.
func (s *OnboardingService) Submit(ctx context.Context, input SubmitOnboardingInput) (*domain.OnboardingRequest, error) {
	sub := lifecycle.Submission{
		Role:     input.Role,
		Personal: input.Personal,
		Contact:  input.Contact,
		Company:  input.Company,
	}.Normalize()
	if err := lifecycle.ValidateSubmission(sub); err != nil {
		return nil, err
	}

	dupDetails := map[string]any{"phone": sub.Contact.Phone, "role": sub.Role}
	if _, err := s.users.GetByPhoneRole(ctx, sub.Contact.Phone, sub.Role); err == nil {
		return nil, apperrors.NewConflict(apperrors.CodeDuplicateRequest, "user already registered", dupDetails)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "user", nil)
	}
	if _, err := s.requests.GetPendingByPhoneRole(ctx, sub.Contact.Phone, sub.Role); err == nil {
		return nil, apperrors.NewConflict(apperrors.CodeDuplicateRequest, "onboarding request already pending", dupDetails)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "onboarding request", nil)
	}

	req := lifecycle.NewOnboardingRequest(s.newID(), sub, s.now())
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		if repository.IsDuplicateOn(err, repository.ConstraintPendingOnboarding) {
			return nil, apperrors.NewConflict(apperrors.CodeDuplicateRequest, "onboarding request already pending", dupDetails)
		}
		return nil, storeError(err, "onboarding request", nil)
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:        events.EventOnboardingSubmitted,
		AggregateID: req.ID,
		Actor:       userActor(req.Contact.Phone),
		Payload: events.OnboardingSubmittedPayload{
			Role:  req.Role,
			Name:  req.Personal.Name,
			Phone: req.Contact.Phone,
			City:  req.Contact.City,
		},
	})
	return req, nil
}

// Decide accepts or rejects a pending request. Acceptance creates exactly one user:
// the request id is a unique key on the user, and the request update only lands
// while the request is still pending.
func (s *OnboardingService) Decide(ctx context.Context, input DecideOnboardingInput) (*DecideResult, error) {
	req, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, storeError(err, "onboarding request", map[string]any{"request_id": input.RequestID})
	}

	decision, err := lifecycle.Decide(req, lifecycle.DecideParams{
		Decision:   input.Decision,
		AdminID:    input.AdminID,
		OperatorID: input.OperatorID,
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	if !decision.CreatesUser {
		updated := decision.Apply(req, nil)
		if err := s.complete(ctx, updated); err != nil {
			return nil, err
		}
		s.removeOrphan(ctx, req.ID)
		s.publishDecided(ctx, updated, nil, input.AdminID)
		return &DecideResult{Request: updated}, nil
	}

	if decision.OperatorID != "" {
		if err := s.ensureOperator(ctx, decision.OperatorID); err != nil {
			return nil, err
		}
	}

	user, created, err := s.createUser(ctx, req, decision)
	if err != nil {
		return nil, err
	}

	userID := user.ID
	updated := decision.Apply(req, &userID)
	if err := s.complete(ctx, updated); err != nil {
		if apperrors.HasCode(err, apperrors.CodeAlreadyProcessed) {
			if current, ok := s.acceptedWith(ctx, req.ID, user.ID); ok {
				s.logger.Info("onboarding request already accepted with this user",
					zap.String("request_id", req.ID), zap.String("user_id", user.ID),
					zap.Stringp("accepted_by", current.AcceptedBy))
				return &DecideResult{Request: current, User: user}, nil
			}
			if created {
				s.compensate(ctx, req.ID, user.ID)
			}
		}
		if apperrors.KindOf(err) == apperrors.KindStoreUnavailable {
			s.logger.Warn("user created but onboarding request not finalized; reconciler will complete it",
				zap.String("request_id", req.ID), zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil, err
	}

	s.publishDecided(ctx, updated, user, input.AdminID)
	return &DecideResult{Request: updated, User: user}, nil
}

// Get returns a request by id.
func (s *OnboardingService) Get(ctx context.Context, id string) (*domain.OnboardingRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "onboarding request", map[string]any{"request_id": id})
	}
	return req, nil
}

// ListPending returns pending requests, newest first.
func (s *OnboardingService) ListPending(ctx context.Context, limit, offset int) ([]domain.OnboardingRequest, error) {
	reqs, err := s.requests.ListByStatus(ctx, domain.OnboardingStatusPending, limit, offset)
	if err != nil {
		return nil, storeError(err, "onboarding request", nil)
	}
	return reqs, nil
}

func (s *OnboardingService) ensureOperator(ctx context.Context, operatorID string) error {
	op, err := s.moderators.GetByID(ctx, operatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewValidationError("assigned operator not found", map[string]any{"operator_id": operatorID})
	}
	if err != nil {
		return storeError(err, "moderator", nil)
	}
	if op.Role != domain.ModeratorRoleOperator {
		return apperrors.NewValidationError("assigned moderator is not an operator", map[string]any{"operator_id": operatorID})
	}
	return nil
}

// createUser persists the user for an accepted request. It reports created=false
// when a user already exists for this request, which happens when an earlier attempt
// created it but never finalized the request.
func (s *OnboardingService) createUser(ctx context.Context, req *domain.OnboardingRequest, decision lifecycle.Decision) (*domain.User, bool, error) {
	existing, err := s.users.GetByPhoneRole(ctx, req.Contact.Phone, req.Role)
	switch {
	case err == nil:
		if existing.OnboardingRequestID != nil && *existing.OnboardingRequestID == req.ID {
			return existing, false, nil
		}
		return nil, false, duplicateUser(req)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, storeError(err, "user", nil)
	}

	for attempt := 0; attempt < maxUserIDAttempts; attempt++ {
		id, err := s.allocator.Allocate(ctx, s.idMin, s.idMax)
		if err != nil {
			if errors.Is(err, idalloc.ErrExhausted) || errors.Is(err, idalloc.ErrInvalidRange) {
				return nil, false, apperrors.NewInternalError(err)
			}
			return nil, false, storeError(err, "user", nil)
		}
		user := lifecycle.NewUserFromRequest(req, strconv.FormatInt(id, 10), decision.OperatorID, decision.DecidedAt)

		err = retry.Exec(ctx, s.policy, func(ctx context.Context) error {
			return s.users.Create(ctx, user)
		})
		switch {
		case err == nil:
			return user, true, nil
		case repository.IsDuplicateOn(err, repository.ConstraintUserPrimaryKey):
			s.logger.Debug("user id taken between check and insert; reallocating", zap.Int64("user_id", id))
			continue
		case repository.IsDuplicateOn(err, repository.ConstraintUserOnboardingRequest):
			other, getErr := s.users.GetByOnboardingRequest(ctx, req.ID)
			if getErr != nil {
				return nil, false, storeError(getErr, "user", nil)
			}
			return other, false, nil
		case repository.IsDuplicateOn(err, repository.ConstraintUserPhoneRole):
			return nil, false, duplicateUser(req)
		default:
			return nil, false, storeError(err, "user", nil)
		}
	}
	return nil, false, apperrors.NewInternalError(idalloc.ErrExhausted)
}

// complete writes the decision if the request is still pending.
func (s *OnboardingService) complete(ctx context.Context, updated *domain.OnboardingRequest) error {
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.requests.CompleteDecision(ctx, updated)
	})
	if errors.Is(err, repository.ErrStateChanged) {
		return apperrors.NewConflict(apperrors.CodeAlreadyProcessed, "onboarding request already processed",
			map[string]any{"request_id": updated.ID})
	}
	return storeError(err, "onboarding request", map[string]any{"request_id": updated.ID})
}

// acceptedWith reports whether the request was finalized as accepted and linked to userID.
func (s *OnboardingService) acceptedWith(ctx context.Context, requestID, userID string) (*domain.OnboardingRequest, bool) {
	current, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, false
	}
	if current.Status != domain.OnboardingStatusAccepted || current.UserID == nil || *current.UserID != userID {
		return nil, false
	}
	return current, true
}

// removeOrphan deletes a user left behind by an acceptance that never finalized
// the request, once the request has been rejected.
func (s *OnboardingService) removeOrphan(ctx context.Context, requestID string) {
	var orphan *domain.User
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		u, err := s.users.GetByOnboardingRequest(ctx, requestID)
		orphan = u
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("failed to look up user of rejected onboarding request",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}
	s.compensate(ctx, requestID, orphan.ID)
}

// compensate removes a user whose request did not end up linked to it, unless the
// winning decision linked that same user.
func (s *OnboardingService) compensate(ctx context.Context, requestID, userID string) {
	current, err := s.requests.GetByID(ctx, requestID)
	if err == nil && current.UserID != nil && *current.UserID == userID {
		return
	}
	err = retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.users.Delete(ctx, userID)
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("failed to remove unlinked onboarding user",
			zap.String("request_id", requestID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Info("removed unlinked onboarding user",
		zap.String("request_id", requestID), zap.String("user_id", userID))
}

func (s *OnboardingService) publishDecided(ctx context.Context, req *domain.OnboardingRequest, user *domain.User, adminID string) {
	payload := events.OnboardingDecidedPayload{
		Status: req.Status,
		Role:   req.Role,
		UserID: req.UserID,
		Name:   req.Personal.Name,
	}
	if user != nil {
		payload.OperatorID = user.AssignedOperator
	}
	publish(ctx, s.dispatcher, events.Event{
		Type:        events.EventOnboardingDecided,
		AggregateID: req.ID,
		Actor:       moderatorActor(adminID),
		Payload:     payload,
	})
}

func duplicateUser(req *domain.OnboardingRequest) error {
	return apperrors.NewConflict(apperrors.CodeDuplicateUser, "user with this phone and role already exists",
		map[string]any{"phone": req.Contact.Phone, "role": req.Role})
}
