package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenAIClient transcribes documents with Gemini models. PDFs and images are
// sent inline.
type GenAIClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGenAIClient creates a Gemini client.
func NewGenAIClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client: client,
		model:  model,
		logger: logger.Named("llm-genai"),
	}, nil
}

// Transcribe implements VisionClient.
func (c *GenAIClient) Transcribe(ctx context.Context, prompt string, data []byte, mimeType string) (*GenerateResponseResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		c.logger.Error("GenAI transcription failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	result := &GenerateResponseResult{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.Info("GenAI transcription completed",
		zap.Int("bytes", len(data)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// GetModel returns the configured model name.
func (c *GenAIClient) GetModel() string {
	return c.model
}
