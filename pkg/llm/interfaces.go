// Package llm wraps the language-model backends used for reasoning and
// document transcription.
package llm

import (
	"context"
)

// GenerateResponseResult is a completion plus its token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the text completion operations the service needs.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// VisionClient transcribes binary documents (scans, photos, PDFs) into text.
type VisionClient interface {
	Transcribe(ctx context.Context, prompt string, data []byte, mimeType string) (*GenerateResponseResult, error)
	GetModel() string
}

var (
	_ LLMClient    = (*Client)(nil)
	_ VisionClient = (*Client)(nil)
	_ LLMClient    = (*AnthropicClient)(nil)
	_ VisionClient = (*GenAIClient)(nil)
)
