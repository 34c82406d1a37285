package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/repository"
)

// ReconcilerActor is recorded as accepted_by on requests the reconciler finalizes.
const ReconcilerActor = "system:reconciler"

// DefaultReconcileGrace is how old a stranded user must be before the reconciler
// finalizes its request. It has to outlast a decision's write retries.
const DefaultReconcileGrace = 2 * time.Minute

// Reconciler finalizes onboarding requests left pending after their user was
// created, which happens when the request update failed past the write retrier.
type Reconciler struct {
	requests   repository.OnboardingRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	grace      time.Duration
	batchSize  int
}

// NewReconciler builds a reconciler. A non-positive grace uses DefaultReconcileGrace.
func NewReconciler(requests repository.OnboardingRepository, dispatcher events.Dispatcher, grace time.Duration, logger *zap.Logger) *Reconciler {
	if grace <= 0 {
		grace = DefaultReconcileGrace
	}
	return &Reconciler{
		requests:   requests,
		dispatcher: dispatcher,
		logger:     nopLogger(logger),
		now:        clockOrNow(nil),
		grace:      grace,
		batchSize:  100,
	}
}

// Reconcile runs one pass and returns how many requests it finalized.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	stranded, err := r.requests.ListStranded(ctx, r.now().Add(-r.grace), r.batchSize)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, item := range stranded {
		req := item.Request
		userID := item.UserID
		actor := ReconcilerActor
		decidedAt := r.now()

		req.Status = domain.OnboardingStatusAccepted
		req.AcceptedBy = &actor
		req.RejectedBy = nil
		req.DecidedAt = &decidedAt
		req.UserID = &userID

		err := r.requests.CompleteDecision(ctx, &req)
		if errors.Is(err, repository.ErrStateChanged) {
			continue
		}
		if err != nil {
			r.logger.Warn("reconcile onboarding request failed", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		fixed++
		r.logger.Info("reconciled onboarding request", zap.String("request_id", req.ID), zap.String("user_id", userID))
		publish(ctx, r.dispatcher, events.Event{
			Type:        events.EventOnboardingDecided,
			AggregateID: req.ID,
			Actor:       moderatorActor(ReconcilerActor),
			Payload: events.OnboardingDecidedPayload{
				Status: req.Status,
				Role:   req.Role,
				UserID: req.UserID,
				Name:   req.Personal.Name,
			},
		})
	}
	return fixed, nil
}

// Start schedules Reconcile every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).Do(func() {
		if _, err := r.Reconcile(ctx); err != nil {
			r.logger.Error("onboarding reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	scheduler.StartAsync()
	go func() {
		<-ctx.Done()
		scheduler.Stop()
		r.logger.Info("onboarding reconciler stopped")
	}()
	return nil
}
