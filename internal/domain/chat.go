package domain

import "time"

// SentBy tells which side of an operator/user pair authored a message.
type SentBy string

const (
	SentByUser     SentBy = "user"
	SentByOperator SentBy = "operator"
)

// Message is an append-only chat message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	SentBy     SentBy
	Body       string
	CreatedAt  time.Time
}

// ChatHistory is the single summary row for one (operator, user) pair.
type ChatHistory struct {
	ID              string
	OperatorID      string
	UserID          string
	LastMessage     string
	LastInteraction time.Time
	ReadStatus      bool
	CreatedAt       time.Time
}

// ChatSummary is a history row seen from one participant.
type ChatSummary struct {
	History          ChatHistory
	CounterpartID    string
	CounterpartName  string
	CounterpartIsOps bool
}
