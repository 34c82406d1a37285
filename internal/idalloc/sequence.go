package idalloc

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Sequence hands out strictly increasing numbers.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// RedisSequence is a store-native atomic counter. Concurrent callers never observe
// the same value, unlike a scan for the current maximum followed by an insert.
type RedisSequence struct {
	client redis.Cmdable
	key    string
}

// NewRedisSequence builds a counter stored under key.
func NewRedisSequence(client redis.Cmdable, key string) *RedisSequence {
	return &RedisSequence{client: client, key: key}
}

// Next increments and returns the counter.
func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	return s.client.Incr(ctx, s.key).Result()
}

// Seed sets the counter to floor unless it already exists, so numbering continues
// after the highest persisted value when Redis starts empty.
func (s *RedisSequence) Seed(ctx context.Context, floor int64) error {
	return s.client.SetNX(ctx, s.key, floor, 0).Err()
}
