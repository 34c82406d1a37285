package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// EventNewMessage is the event name a relayed chat message carries.
const EventNewMessage = "new_message"

// RoomEmitter delivers an event to the live connections joined to a room.
type RoomEmitter interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// ChatService persists operator/user messages, keeps one history row per pair and
// relays messages to the pair's room.
type ChatService struct {
	messages  repository.MessageRepository
	histories repository.ChatHistoryRepository
	emitter   RoomEmitter
	policy    retry.Policy
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	MessageRepo repository.MessageRepository
	HistoryRepo repository.ChatHistoryRepository
	Emitter     RoomEmitter
	WritePolicy retry.Policy
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

// SendMessageInput is one chat message.
type SendMessageInput struct {
	SenderID   string
	ReceiverID string
	SentBy     domain.SentBy
	Body       string
}

// MessageEvent is the relayed form of a message.
type MessageEvent struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	SentBy     domain.SentBy `json:"sentBy"`
	Body       string        `json:"body"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	s := &ChatService{
		messages:  deps.MessageRepo,
		histories: deps.HistoryRepo,
		emitter:   deps.Emitter,
		policy:    defaultPolicy(deps.WritePolicy),
		logger:    nopLogger(deps.Logger),
		now:       clockOrNow(deps.Now),
		newID:     deps.NewID,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// RoomID returns the room shared by a and b.
func (s *ChatService) RoomID(a, b string) string {
	return RoomID(a, b)
}

// SendMessage stores the message, records the interaction on the pair's history and
// relays it to the pair's room. Nothing is relayed when the message cannot be
// stored. Relay failures are not reported; the receiver sees the message on the
// next fetch.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	details := map[string]any{}
	if body == "" {
		details["body"] = "required"
	}
	if input.SenderID == "" || input.ReceiverID == "" {
		details["participants"] = "sender and receiver required"
	} else if input.SenderID == input.ReceiverID {
		details["participants"] = "sender and receiver must differ"
	}
	if input.SentBy != domain.SentByUser && input.SentBy != domain.SentByOperator {
		details["sentBy"] = "must be user or operator"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid message", details)
	}

	msg := &domain.Message{
		ID:         s.newID(),
		SenderID:   input.SenderID,
		ReceiverID: input.ReceiverID,
		SentBy:     input.SentBy,
		Body:       body,
		CreatedAt:  s.now(),
	}
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		err := s.messages.Create(ctx, msg)
		if repository.IsDuplicateOn(err, repository.ConstraintMessagePrimaryKey) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, storeError(err, "message", nil)
	}

	operatorID, userID := msg.ReceiverID, msg.SenderID
	if msg.SentBy == domain.SentByOperator {
		operatorID, userID = msg.SenderID, msg.ReceiverID
	}
	history := &domain.ChatHistory{
		ID:              s.newID(),
		OperatorID:      operatorID,
		UserID:          userID,
		LastMessage:     stringPreview(body, 120),
		LastInteraction: msg.CreatedAt,
		ReadStatus:      msg.SentBy == domain.SentByOperator,
	}
	err = retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.histories.Touch(ctx, history)
	})
	if err != nil {
		s.logger.Error("chat history update failed",
			zap.String("message_id", msg.ID),
			zap.String("operator_id", operatorID),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	s.relay(ctx, msg)
	return msg, nil
}

func (s *ChatService) relay(ctx context.Context, msg *domain.Message) {
	if s.emitter == nil {
		return
	}
	room := RoomID(msg.SenderID, msg.ReceiverID)
	err := s.emitter.Emit(ctx, room, EventNewMessage, MessageEvent{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		SentBy:     msg.SentBy,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	})
	if err != nil {
		s.logger.Debug("chat relay failed", zap.String("room", room), zap.Error(err))
	}
}

// ListHistory returns a participant's conversations, most recent interaction first.
func (s *ChatService) ListHistory(ctx context.Context, participantID string) ([]domain.ChatSummary, error) {
	if participantID == "" {
		return nil, apperrors.NewValidationError("participant id required", nil)
	}
	summaries, err := s.histories.ListForParticipant(ctx, participantID)
	if err != nil {
		return nil, storeError(err, "chat history", nil)
	}
	return summaries, nil
}

// CreateHistory opens the pair's history row if it does not exist yet.
func (s *ChatService) CreateHistory(ctx context.Context, operatorID, userID string) (*domain.ChatHistory, error) {
	if operatorID == "" || userID == "" {
		return nil, apperrors.NewValidationError("operator and user required", nil)
	}
	history := &domain.ChatHistory{
		ID:              s.newID(),
		OperatorID:      operatorID,
		UserID:          userID,
		LastInteraction: s.now(),
		ReadStatus:      true,
	}
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.histories.Ensure(ctx, history)
	})
	if err != nil {
		return nil, storeError(err, "chat history", nil)
	}
	return history, nil
}

// MarkRead marks the pair's history as read.
func (s *ChatService) MarkRead(ctx context.Context, operatorID, userID string) error {
	err := retry.Exec(ctx, s.policy, func(ctx context.Context) error {
		return s.histories.MarkRead(ctx, operatorID, userID)
	})
	return storeError(err, "chat history", map[string]any{"operator_id": operatorID, "user_id": userID})
}

// ListMessages returns the latest messages between a and b, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	if a == "" || b == "" {
		return nil, apperrors.NewValidationError("both participants required", nil)
	}
	msgs, err := s.messages.ListBetween(ctx, a, b, limit)
	if err != nil {
		return nil, storeError(err, "message", nil)
	}
	return msgs, nil
}
