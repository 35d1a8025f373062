package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func sampleEntries() []models.ContextEntry {
	return []models.ContextEntry{
		{Seq: 1, Round: 1, Kind: models.ContextKindSourceSample, Content: "Part No,Qty\nA,2"},
		{Seq: 2, Round: 1, Kind: models.ContextKindSchema, Content: "Destination schema \"inventory\""},
		{Seq: 3, Round: 1, Kind: models.ContextKindUserAnswer, Content: "Qty is on-hand stock"},
	}
}

func TestBuildReasoningPrompt_IncludesEveryEntryInOrder(t *testing.T) {
	prompt := BuildReasoningPrompt(sampleEntries())

	first := strings.Index(prompt, "[#1 round 1 source_sample]")
	second := strings.Index(prompt, "[#2 round 1 destination_schema]")
	third := strings.Index(prompt, "[#3 round 1 user_answer]")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
	assert.Contains(t, prompt, "Qty is on-hand stock")
	assert.Contains(t, prompt, `"mappings"`)
}

func TestLLMReasoner_ParsesReply(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: "```json\n" +
			`{"questions": [], "mappings": [{"source_field": "Qty", "target_field": "quantity", "confidence": 0.9, "from_user_answer": true}]}` +
			"\n```"}, nil
	}

	r := NewLLMReasoner(mock, ReasonerConfig{}, zap.NewNop())
	reply, err := r.Reason(context.Background(), sampleEntries())
	require.NoError(t, err)
	require.Len(t, reply.Mappings, 1)
	assert.Equal(t, "quantity", *reply.Mappings[0].TargetField)
	assert.True(t, reply.Mappings[0].FromUserAnswer)
	assert.Contains(t, mock.LastPrompt(), "Part No,Qty")
}

func TestLLMReasoner_BreakerOpensAfterFailures(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		return nil, errors.New("502 bad gateway")
	}

	r := NewLLMReasoner(mock, ReasonerConfig{
		Breaker: llm.CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour},
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := r.Reason(context.Background(), sampleEntries())
		require.Error(t, err)
	}
	_, err := r.Reason(context.Background(), sampleEntries())
	require.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.Equal(t, 2, mock.GenerateResponseCalls, "an open breaker does not call the backend")
}
