package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"memodraft/internal/config"
)

// NewGateway selects the gateway for cfg.Provider:
//
//	gemini                    native genai client, documents sent as inline bytes
//	openai, claude            eino chat model
//	eino-gemini               eino gemini chat model
func NewGateway(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "gemini", "genai":
		return NewGenAIGateway(ctx, GenAIOptions{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.RequestTimeout,
		}, log)
	case "openai", "claude", "eino-gemini":
		chatModel, err := newChatModel(ctx, strings.TrimPrefix(provider, "eino-"), cfg)
		if err != nil {
			return nil, fmt.Errorf("init %s chat model: %w", provider, err)
		}
		return NewEinoGateway(ctx, chatModel, EinoOptions{
			Tools:   ChatTools(ctx, cfg, log),
			Timeout: cfg.RequestTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
}
