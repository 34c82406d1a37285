package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/observability"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// StartNotificationWorker registers notification handlers, starts the push pool and
// drains its error channel into logs and metrics. The returned channel is closed
// once the pool is stopped and every error has been consumed.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, pool *Pool, metrics *observability.Metrics, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if pool == nil {
		close(done)
		return done
	}

	pool.Start(ctx)
	go func() {
		defer close(done)
		for err := range pool.Errors() {
			metrics.RecordPush(observability.PushFailed)
			domainErr := apperrors.ToDomainError(err)
			logger.Warn("push delivery failed",
				zap.String("kind", string(domainErr.Kind)),
				zap.Any("details", domainErr.Details),
				zap.Error(err))
		}
	}()
	return done
}
