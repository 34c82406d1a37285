package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// SendMessageRequest payload.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

// CreateHistoryRequest opens a conversation with a counterpart.
type CreateHistoryRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

// MessageResponse describes a chat message.
type MessageResponse struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"sender_id"`
	ReceiverID string        `json:"receiver_id"`
	SentBy     domain.SentBy `json:"sent_by"`
	Body       string        `json:"body"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ChatHistoryResponse is one conversation in a participant's list.
type ChatHistoryResponse struct {
	OperatorID      string    `json:"operator_id"`
	UserID          string    `json:"user_id"`
	CounterpartID   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name"`
	LastMessage     string    `json:"last_message"`
	LastInteraction time.Time `json:"last_interaction"`
	ReadStatus      bool      `json:"read_status"`
	Room            string    `json:"room"`
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		SentBy:     msg.SentBy,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}

// NewChatHistoryResponse maps a summary; room is the pair's relay room.
func NewChatHistoryResponse(summary domain.ChatSummary, room string) ChatHistoryResponse {
	return ChatHistoryResponse{
		OperatorID:      summary.History.OperatorID,
		UserID:          summary.History.UserID,
		CounterpartID:   summary.CounterpartID,
		CounterpartName: summary.CounterpartName,
		LastMessage:     summary.History.LastMessage,
		LastInteraction: summary.History.LastInteraction,
		ReadStatus:      summary.History.ReadStatus,
		Room:            room,
	}
}
