package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// WritePolicy builds the retry policy applied to durable writes. Only transient
// store errors are retried.
func WritePolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		Attempts:       cfg.Attempts,
		Delay:          cfg.Delay(),
		AttemptTimeout: cfg.AttemptTimeout(),
		Retryable:      repository.IsTransient,
	}
}

func defaultPolicy(p retry.Policy) retry.Policy {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = repository.IsTransient
	}
	return p
}

// storeError translates a repository error for callers. Domain errors pass through.
func storeError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(apperrors.CodeConflict, resource+" already exists", details)
	case errors.Is(err, context.Canceled):
		return err
	case repository.IsTransient(err):
		return apperrors.NewStoreUnavailable(err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeUser, ID: userID}
}

func moderatorActor(moderatorID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeModerator, ID: moderatorID}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// RoomID derives the room two participants share. Order of arguments does not matter.
func RoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "room:" + pair[0] + ":" + pair[1]
}

func nopLogger(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return now
}
