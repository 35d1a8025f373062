package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"plain array", `[1, 2]`, `[1, 2]`},
		{"prose around object", "Here you go: {\"questions\": [\"Which column?\"]} hope it helps", `{"questions": ["Which column?"]}`},
		{"fenced", "```json\n{\"mappings\": []}\n```", `{"mappings": []}`},
		{"think block", "<think>maybe {not json}</think>\n{\"ok\": true}", `{"ok": true}`},
		{"braces in strings", `{"note": "use } and { carefully"}`, `{"note": "use } and { carefully"}`},
		{"skips invalid prefix", `{oops} {"x": [1, {"y": 2}]}`, `{"x": [1, {"y": 2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I could not find any items.")
	assert.Error(t, err)
}

func TestParseJSONResponse(t *testing.T) {
	type reply struct {
		Questions []string `json:"questions"`
	}

	got, err := ParseJSONResponse[reply]("```json\n{\"questions\": [\"Is Qty per box?\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"Is Qty per box?"}, got.Questions)

	_, err = ParseJSONResponse[reply](`{"questions": "not a list"}`)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrorTypeResponse, GetErrorType(err))
}
