package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/idalloc"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

var onboardingNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type onboardingFixture struct {
	svc        *OnboardingService
	requests   *fakeOnboardingRepo
	users      *fakeUserRepo
	moderators *fakeModeratorRepo
	dispatcher events.Dispatcher
	mu         sync.Mutex
	published  []events.Event
}

func newOnboardingFixture(t *testing.T, opts ...func(*OnboardingDependencies)) *onboardingFixture {
	t.Helper()
	f := &onboardingFixture{
		users: newFakeUserRepo(),
		moderators: newFakeModeratorRepo(
			domain.Moderator{ID: "A1", Name: "Admin", Role: domain.ModeratorRoleAdmin, CreatedAt: onboardingNow},
			domain.Moderator{ID: "O1", Name: "Operator", Role: domain.ModeratorRoleOperator, CreatedAt: onboardingNow},
		),
		dispatcher: events.NewInMemoryDispatcher(),
	}
	f.requests = newFakeOnboardingRepo(f.users)
	record := func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
		return nil
	}
	f.dispatcher.Subscribe(events.EventOnboardingSubmitted, record)
	f.dispatcher.Subscribe(events.EventOnboardingDecided, record)

	deps := OnboardingDependencies{
		RequestRepo:   f.requests,
		UserRepo:      f.users,
		ModeratorRepo: f.moderators,
		Dispatcher:    f.dispatcher,
		WritePolicy:   testPolicy(),
		Now:           fixedClock(onboardingNow),
		NewID:         sequentialIDs("req"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewOnboardingService(deps)
	return f
}

func (f *onboardingFixture) eventsOf(eventType events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func buyerSubmission() SubmitOnboardingInput {
	return SubmitOnboardingInput{
		Role:     domain.UserRoleBuyer,
		Personal: domain.PersonalDetails{Name: "Ravi Kumar"},
		Contact:  domain.ContactDetails{Phone: "9876543210", City: "Surat"},
	}
}

func TestSubmitCreatesPendingRequestOnce(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, buyerSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if req.Status != domain.OnboardingStatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if len(f.eventsOf(events.EventOnboardingSubmitted)) != 1 {
		t.Fatalf("expected one submitted event")
	}

	again := buyerSubmission()
	again.Contact.Phone = "+91 98765 43210"
	_, err = f.svc.Submit(ctx, again)
	if !apperrors.HasCode(err, apperrors.CodeDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("expected conflict kind, got %s", apperrors.KindOf(err))
	}
}

func TestSubmitRejectsExistingUser(t *testing.T) {
	f := newOnboardingFixture(t)
	f.users.users["100200"] = domain.User{ID: "100200", Role: domain.UserRoleBuyer, Contact: domain.ContactDetails{Phone: "9876543210"}}

	_, err := f.svc.Submit(context.Background(), buyerSubmission())
	if !apperrors.HasCode(err, apperrors.CodeDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}
}

func TestSubmitSamePhoneDifferentRoleAllowed(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, buyerSubmission()); err != nil {
		t.Fatalf("buyer submit failed: %v", err)
	}
	seller := buyerSubmission()
	seller.Role = domain.UserRoleSeller
	if _, err := f.svc.Submit(ctx, seller); err != nil {
		t.Fatalf("seller submit with same phone failed: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newOnboardingFixture(t)
	input := buyerSubmission()
	input.Contact.Phone = "123"

	_, err := f.svc.Submit(context.Background(), input)
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecideRejectCreatesNoUser(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, buyerSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusRejected, AdminID: "A1"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if res.Request.Status != domain.OnboardingStatusRejected {
		t.Fatalf("expected rejected, got %s", res.Request.Status)
	}
	if res.Request.RejectedBy == nil || *res.Request.RejectedBy != "A1" {
		t.Fatalf("expected rejected_by A1, got %v", res.Request.RejectedBy)
	}
	if res.User != nil || f.users.count() != 0 {
		t.Fatalf("rejection must not create a user")
	}

	_, err = f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if !apperrors.HasCode(err, apperrors.CodeAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
}

func TestDecideAcceptBuyerCreatesLinkedUser(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, buyerSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if f.users.count() != 1 {
		t.Fatalf("expected exactly one user, got %d", f.users.count())
	}
	user := res.User
	if user.AssignedOperator != "O1" || user.Role != domain.UserRoleBuyer {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.ID < "100000" || user.ID > "999999" || len(user.ID) != 6 {
		t.Fatalf("user id %q outside default range", user.ID)
	}

	stored, _ := f.requests.GetByID(ctx, req.ID)
	if stored.Status != domain.OnboardingStatusAccepted || stored.UserID == nil || *stored.UserID != user.ID {
		t.Fatalf("request not linked to user: %+v", stored)
	}
	if stored.AcceptedBy == nil || *stored.AcceptedBy != "A1" {
		t.Fatalf("expected accepted_by A1, got %v", stored.AcceptedBy)
	}

	decided := f.eventsOf(events.EventOnboardingDecided)
	if len(decided) != 1 {
		t.Fatalf("expected one decided event, got %d", len(decided))
	}
	payload := decided[0].Payload.(events.OnboardingDecidedPayload)
	if payload.OperatorID != "O1" {
		t.Fatalf("expected operator in payload, got %q", payload.OperatorID)
	}
}

func TestDecideAcceptBuyerRequiresOperatorRole(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	_, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1"})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error without operator, got %v", err)
	}
	_, err = f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "A1"})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error for admin as operator, got %v", err)
	}
	if f.users.count() != 0 {
		t.Fatalf("no user expected")
	}
}

func TestDecideAcceptSellerIgnoresOperator(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	input := buyerSubmission()
	input.Role = domain.UserRoleSeller
	req, _ := f.svc.Submit(ctx, input)

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if res.User.AssignedOperator != "" {
		t.Fatalf("seller must not get an operator, got %q", res.User.AssignedOperator)
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	f := newOnboardingFixture(t)
	_, err := f.svc.Decide(context.Background(), DecideOnboardingInput{RequestID: "missing", Decision: domain.OnboardingStatusRejected, AdminID: "A1"})
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDecideDuplicateUser(t *testing.T) {
	f := newOnboardingFixture(t)
	f.requests.set(domain.OnboardingRequest{
		ID:       "req-x",
		Role:     domain.UserRoleBuyer,
		Personal: domain.PersonalDetails{Name: "Ravi Kumar"},
		Contact:  domain.ContactDetails{Phone: "9876543210"},
		Status:   domain.OnboardingStatusPending,
	})
	f.users.users["100200"] = domain.User{ID: "100200", Role: domain.UserRoleBuyer, Contact: domain.ContactDetails{Phone: "9876543210"}}

	_, err := f.svc.Decide(context.Background(), DecideOnboardingInput{RequestID: "req-x", Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if !apperrors.HasCode(err, apperrors.CodeDuplicateUser) {
		t.Fatalf("expected duplicate user, got %v", err)
	}
	stored, _ := f.requests.GetByID(context.Background(), "req-x")
	if stored.Status != domain.OnboardingStatusPending {
		t.Fatalf("request must stay pending, got %s", stored.Status)
	}
}

func TestDecideLostRaceRemovesCreatedUser(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	f.requests.beforeComplete = func(r *fakeOnboardingRepo, id string) {
		other := "A2"
		current, _ := r.GetByID(ctx, id)
		current.Status = domain.OnboardingStatusRejected
		current.RejectedBy = &other
		r.set(*current)
	}

	_, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if !apperrors.HasCode(err, apperrors.CodeAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	if f.users.count() != 0 || len(f.users.deleted) != 1 {
		t.Fatalf("expected created user to be removed, users=%d deleted=%v", f.users.count(), f.users.deleted)
	}
	if len(f.eventsOf(events.EventOnboardingDecided)) != 0 {
		t.Fatalf("losing decision must not publish")
	}
}

func TestDecideLostRaceToSameAcceptanceSucceeds(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	f.requests.beforeComplete = func(r *fakeOnboardingRepo, id string) {
		winner := "A2"
		user, err := r.users.GetByOnboardingRequest(ctx, id)
		if err != nil {
			t.Errorf("expected user before finalize: %v", err)
			return
		}
		current, _ := r.GetByID(ctx, id)
		current.Status = domain.OnboardingStatusAccepted
		current.AcceptedBy = &winner
		current.UserID = &user.ID
		r.set(*current)
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("acceptance already landed with this user, got %v", err)
	}
	if *res.Request.AcceptedBy != "A2" || *res.Request.UserID != res.User.ID {
		t.Fatalf("expected the stored request, got %+v", res.Request)
	}
	if f.users.count() != 1 || len(f.users.deleted) != 0 {
		t.Fatalf("user linked by the winner must survive")
	}
	if len(f.eventsOf(events.EventOnboardingDecided)) != 0 {
		t.Fatalf("the winning decision publishes, not this one")
	}
}

func TestDecideStoreOutageIsReconciled(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	f.requests.completeErr = errConnReset
	_, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if apperrors.KindOf(err) != apperrors.KindStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if f.users.count() != 1 {
		t.Fatalf("user should exist after partial failure")
	}
	f.requests.completeErr = nil

	reconciler := NewReconciler(f.requests, f.dispatcher, 0, nil)
	reconciler.now = fixedClock(onboardingNow.Add(DefaultReconcileGrace + time.Minute))
	fixed, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if fixed != 1 {
		t.Fatalf("expected 1 reconciled request, got %d", fixed)
	}
	stored, _ := f.requests.GetByID(ctx, req.ID)
	if stored.Status != domain.OnboardingStatusAccepted || stored.AcceptedBy == nil || *stored.AcceptedBy != ReconcilerActor {
		t.Fatalf("unexpected reconciled request %+v", stored)
	}
	if len(f.eventsOf(events.EventOnboardingDecided)) != 1 {
		t.Fatalf("reconciler should publish the decision")
	}

	if fixed, _ := reconciler.Reconcile(ctx); fixed != 0 {
		t.Fatalf("second pass should find nothing, got %d", fixed)
	}
}

func TestRejectAfterOutageRemovesCreatedUser(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	f.requests.completeErr = errConnReset
	if _, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"}); err == nil {
		t.Fatalf("expected failure during outage")
	}
	f.requests.completeErr = nil
	if f.users.count() != 1 {
		t.Fatalf("user should exist after partial failure")
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusRejected, AdminID: "A2"})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if res.Request.Status != domain.OnboardingStatusRejected || res.User != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.users.count() != 0 || len(f.users.deleted) != 1 {
		t.Fatalf("rejected request must leave no user, users=%d deleted=%v", f.users.count(), f.users.deleted)
	}

	reconciler := NewReconciler(f.requests, f.dispatcher, 0, nil)
	reconciler.now = fixedClock(onboardingNow.Add(time.Hour))
	if fixed, _ := reconciler.Reconcile(ctx); fixed != 0 {
		t.Fatalf("nothing left to reconcile, got %d", fixed)
	}
}

func TestReconcilerLeavesFreshAcceptanceAlone(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	reconciler := NewReconciler(f.requests, f.dispatcher, 0, nil)
	reconciler.now = fixedClock(onboardingNow.Add(time.Second))
	f.requests.beforeComplete = func(*fakeOnboardingRepo, string) {
		fixed, err := reconciler.Reconcile(ctx)
		if err != nil || fixed != 0 {
			t.Errorf("reconciler must skip an acceptance in flight, fixed=%d err=%v", fixed, err)
		}
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if *res.Request.AcceptedBy != "A1" {
		t.Fatalf("expected the deciding admin, got %s", *res.Request.AcceptedBy)
	}
	if len(f.eventsOf(events.EventOnboardingDecided)) != 1 {
		t.Fatalf("expected a single decided event")
	}
}

func TestDecideSucceedsWhenReconcilerFinalizedFirst(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	reconciler := NewReconciler(f.requests, f.dispatcher, 0, nil)
	reconciler.now = fixedClock(onboardingNow.Add(DefaultReconcileGrace + time.Minute))
	f.requests.beforeComplete = func(*fakeOnboardingRepo, string) {
		if fixed, _ := reconciler.Reconcile(ctx); fixed != 1 {
			t.Errorf("expected the reconciler to finalize, got %d", fixed)
		}
	}

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("acceptance landed through the reconciler, got %v", err)
	}
	if res.Request.Status != domain.OnboardingStatusAccepted || *res.Request.UserID != res.User.ID {
		t.Fatalf("unexpected result %+v", res.Request)
	}
	if f.users.count() != 1 || len(f.users.deleted) != 0 {
		t.Fatalf("the linked user must survive")
	}
}

func TestDecideRetryAfterOutageReusesUser(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	f.requests.completeErr = errConnReset
	if _, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"}); err == nil {
		t.Fatalf("expected failure during outage")
	}
	f.requests.completeErr = nil

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if f.users.count() != 1 {
		t.Fatalf("expected a single user, got %d", f.users.count())
	}
	if *res.Request.UserID != res.User.ID {
		t.Fatalf("request linked to %s, user is %s", *res.Request.UserID, res.User.ID)
	}
}

func TestDecideReallocatesOnPrimaryKeyCollision(t *testing.T) {
	var draws uint64
	allocator := idalloc.NewAllocator(
		idalloc.CheckerFunc(func(context.Context, int64) (bool, error) { return false, nil }),
		idalloc.WithSource(func() time.Time { return time.Unix(0, 0) }, func() uint64 {
			n := draws
			draws++
			return n
		}),
	)
	f := newOnboardingFixture(t, func(d *OnboardingDependencies) { d.Allocator = allocator })
	f.users.users["100000"] = domain.User{ID: "100000", Role: domain.UserRoleSeller, Contact: domain.ContactDetails{Phone: "9000000000"}}
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())

	res, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusAccepted, AdminID: "A1", OperatorID: "O1"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if res.User.ID != "100001" {
		t.Fatalf("expected reallocated id 100001, got %s", res.User.ID)
	}
}

func TestListPending(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Submit(ctx, buyerSubmission())
	seller := buyerSubmission()
	seller.Role = domain.UserRoleSeller
	seller.Contact.Phone = "9123456780"
	if _, err := f.svc.Submit(ctx, seller); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.svc.Decide(ctx, DecideOnboardingInput{RequestID: req.ID, Decision: domain.OnboardingStatusRejected, AdminID: "A1"}); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	pending, err := f.svc.ListPending(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Role != domain.UserRoleSeller {
		t.Fatalf("unexpected pending list %+v", pending)
	}
}
