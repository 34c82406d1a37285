package push

import (
	"context"

	"go.uber.org/zap"
)

// NoopProvider logs instead of delivering. Used when no Firebase credentials are configured.
type NoopProvider struct {
	logger *zap.Logger
}

func NewNoopProvider(logger *zap.Logger) *NoopProvider {
	return &NoopProvider{logger: logger}
}

func (p *NoopProvider) Send(_ context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}
	p.logger.Debug("push skipped", zap.String("title", msg.Title))
	return nil
}

func (p *NoopProvider) SendMulticast(_ context.Context, tokens []string, title, _ string, _ map[string]string) (BatchResult, error) {
	p.logger.Debug("multicast push skipped", zap.String("title", title), zap.Int("tokens", len(tokens)))
	return BatchResult{SuccessCount: len(tokens)}, nil
}

func (p *NoopProvider) SendToTopic(_ context.Context, topic, title, _ string, _ map[string]string) error {
	p.logger.Debug("topic push skipped", zap.String("topic", topic), zap.String("title", title))
	return nil
}

func (p *NoopProvider) SubscribeToTopic(_ context.Context, tokens []string, _ string) (BatchResult, error) {
	return BatchResult{SuccessCount: len(tokens)}, nil
}

func (p *NoopProvider) UnsubscribeFromTopic(_ context.Context, tokens []string, _ string) (BatchResult, error) {
	return BatchResult{SuccessCount: len(tokens)}, nil
}
