package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/idalloc"
)

// TicketNumberKey holds the ticket number counter.
const TicketNumberKey = "marketplace:ticket_number"

// Redis wraps the go-redis client used for counters and the chat relay.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis. The service can start without it; counters and the
// relay report errors until it becomes reachable.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client}
}

// TicketSequence returns the ticket number counter, seeded so numbering continues
// after floor when the key does not exist yet.
func (r *Redis) TicketSequence(ctx context.Context, floor int64) (*idalloc.RedisSequence, error) {
	seq := idalloc.NewRedisSequence(r.Client, TicketNumberKey)
	if err := seq.Seed(ctx, floor); err != nil {
		return seq, err
	}
	return seq, nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
