package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoToken is returned when a recipient has no registered device.
var ErrNoToken = errors.New("push: recipient has no device token")

// Message is a single device notification.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// BatchResult reports per-recipient outcomes of a multi-recipient call.
type BatchResult struct {
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	FailedTokens []string `json:"failedTokens,omitempty"`
}

// Provider delivers push notifications. Multi-recipient calls never fail on
// partial delivery; they report counts instead.
type Provider interface {
	Send(ctx context.Context, msg Message) error
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (BatchResult, error)
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (BatchResult, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (BatchResult, error)
}

// StringData flattens a structured payload into the string map push providers require.
func StringData(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case fmt.Stringer:
			out[k] = val.String()
		case int, int32, int64, uint, uint32, uint64:
			out[k] = fmt.Sprintf("%d", val)
		case float64:
			out[k] = fmt.Sprintf("%g", val)
		case bool:
			out[k] = fmt.Sprintf("%t", val)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
