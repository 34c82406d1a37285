package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMProvider sends through Firebase Cloud Messaging.
type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider initializes a Firebase app from a service account file.
func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}
	_, err := p.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		Token:        msg.Token,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{Sound: "default"},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	})
	return err
}

func (p *FCMProvider) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (BatchResult, error) {
	if len(tokens) == 0 {
		return BatchResult{}, nil
	}
	resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return BatchResult{FailureCount: len(tokens), FailedTokens: tokens}, err
	}
	result := BatchResult{SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}
	for i, r := range resp.Responses {
		if !r.Success && i < len(tokens) {
			result.FailedTokens = append(result.FailedTokens, tokens[i])
		}
	}
	return result, nil
}

func (p *FCMProvider) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	_, err := p.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Topic:        topic,
	})
	return err
}

func (p *FCMProvider) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (BatchResult, error) {
	resp, err := p.client.SubscribeToTopic(ctx, tokens, topic)
	return topicResult(tokens, resp, err)
}

func (p *FCMProvider) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (BatchResult, error) {
	resp, err := p.client.UnsubscribeFromTopic(ctx, tokens, topic)
	return topicResult(tokens, resp, err)
}

func topicResult(tokens []string, resp *messaging.TopicManagementResponse, err error) (BatchResult, error) {
	if err != nil {
		return BatchResult{FailureCount: len(tokens), FailedTokens: tokens}, err
	}
	result := BatchResult{SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}
	for _, e := range resp.Errors {
		if e != nil && e.Index < len(tokens) {
			result.FailedTokens = append(result.FailedTokens, tokens[e.Index])
		}
	}
	return result, nil
}
