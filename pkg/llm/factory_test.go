package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewReasoningClient(t *testing.T) {
	logger := zap.NewNop()

	c, err := NewReasoningClient(&Config{Provider: ProviderOpenAI, Endpoint: "http://localhost:8000/v1", Model: "qwen"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Client{}, c)
	assert.Equal(t, "qwen", c.GetModel())

	c, err = NewReasoningClient(&Config{Provider: ProviderAnthropic, APIKey: "k", Model: "claude-sonnet-4-5"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.Equal(t, "https://api.anthropic.com", c.GetEndpoint())

	_, err = NewReasoningClient(&Config{Provider: ProviderAnthropic, Model: "claude"}, logger)
	assert.Error(t, err, "anthropic requires an api key")

	_, err = NewReasoningClient(&Config{Provider: "bard"}, logger)
	assert.Error(t, err)
}

func TestNewVisionClient(t *testing.T) {
	logger := zap.NewNop()

	v, err := NewVisionClient(context.Background(), &Config{Provider: ProviderOpenAI, Endpoint: "https://api.openai.com/v1", Model: "gpt-4o"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", v.GetModel())

	_, err = NewVisionClient(context.Background(), &Config{Provider: ProviderGenAI}, logger)
	assert.Error(t, err, "genai requires an api key")

	_, err = NewVisionClient(context.Background(), &Config{Provider: ProviderAnthropic}, logger)
	assert.Error(t, err)
}
