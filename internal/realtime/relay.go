package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the pub/sub channel room events travel on.
const DefaultRelayChannel = "chat:rooms"

type relayMessage struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay emits to the local hub and publishes the frame so other instances can
// deliver it to their own clients in the room.
type RedisRelay struct {
	client  redis.UniversalClient
	hub     *Hub
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisRelay builds a relay on channel. An empty channel uses DefaultRelayChannel.
func NewRedisRelay(client redis.UniversalClient, hub *Hub, channel string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Emit delivers locally, then publishes. A publish failure is returned even though
// local clients already received the event.
func (r *RedisRelay) Emit(ctx context.Context, room, event string, payload any) error {
	frame, err := encode(room, event, payload)
	if err != nil {
		return err
	}
	r.hub.deliver(room, frame)

	body, err := json.Marshal(relayMessage{Origin: r.origin, Room: room, Frame: frame})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}

// Run consumes frames published by other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("realtime relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("invalid relay message", zap.Error(err))
		return
	}
	if msg.Origin == r.origin {
		return
	}
	r.hub.deliver(msg.Room, msg.Frame)
}
