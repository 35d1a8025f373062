package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
)

func TestTextStructurer_LenientReply(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: "```json\n" + `{
			"fields": ["Item", "Count"],
			"field_confidence": {"Item": 0.9},
			"items": [
				{"fields": {"Item": 1042, "Count": "6"}, "part_number": 1042, "quantity": "6", "confidence": 0.8},
				{"fields": {"Item": "bracket", "Bin": " "}, "serial_number": "SN-9", "quantity": null}
			]}` + "\n```"}, nil
	}

	res, err := NewTextStructurer(client, zap.NewNop()).Structure(context.Background(), "freetext.llm", "1042 x6, bracket SN-9", nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	first := res.Items[0]
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, "1042", first.PartNumber)
	assert.Equal(t, "1042", first.Fields["Item"])
	require.NotNil(t, first.Quantity)
	assert.Equal(t, 6, *first.Quantity)
	assert.InDelta(t, 0.9, first.FieldConfidence["Item"], 1e-9)
	assert.InDelta(t, 0.8, first.FieldConfidence["Count"], 1e-9)

	second := res.Items[1]
	assert.Equal(t, "SN-9", second.SerialNumber)
	assert.Nil(t, second.Quantity)
	assert.NotContains(t, second.Fields, "Bin", "blank values are dropped")
}

func TestTextStructurer_EmptyInput(t *testing.T) {
	client := llm.NewMockLLMClient()
	_, err := NewTextStructurer(client, zap.NewNop()).Structure(context.Background(), "freetext.llm", "   ", nil)
	require.Error(t, err)
	assert.Equal(t, 0, client.GenerateResponseCalls)
}

func TestTextStructurer_NoItems(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: `{"fields": [], "items": []}`}, nil
	}
	_, err := NewTextStructurer(client, zap.NewNop()).Structure(context.Background(), "freetext.llm", "nothing here", nil)
	require.Error(t, err)
}
