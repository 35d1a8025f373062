package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing LLM consumers.
// Set the function fields to control behavior in tests.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error)

	// TranscribeFunc is called when Transcribe is invoked.
	TranscribeFunc func(ctx context.Context, prompt string, data []byte, mimeType string) (*GenerateResponseResult, error)

	Model    string
	Endpoint string

	mu                    sync.Mutex
	GenerateResponseCalls int
	TranscribeCalls       int
	Prompts               []string
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.GenerateResponseCalls++
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature, thinking)
	}
	return &GenerateResponseResult{}, nil
}

// Transcribe implements VisionClient.
func (m *MockLLMClient) Transcribe(ctx context.Context, prompt string, data []byte, mimeType string) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.TranscribeCalls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, prompt, data, mimeType)
	}
	return &GenerateResponseResult{}, nil
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	return m.Endpoint
}

// LastPrompt returns the most recent prompt passed to GenerateResponse.
func (m *MockLLMClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}
