package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGenAI     = "genai"
)

// NewReasoningClient builds the text completion client for the configured provider.
func NewReasoningClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported reasoning provider %q", cfg.Provider)
	}
}

// NewVisionClient builds the transcription client for the configured provider.
func NewVisionClient(ctx context.Context, cfg *Config, logger *zap.Logger) (VisionClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewClient(cfg, logger)
	case ProviderGenAI:
		return NewGenAIClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported vision provider %q", cfg.Provider)
	}
}
