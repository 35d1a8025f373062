package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"auth", errors.New("error, status code: 401, message: invalid api key"), ErrorTypeAuth, false, 401},
		{"model", errors.New("model does not exist"), ErrorTypeModel, false, 0},
		{"not found", errors.New("status code: 404"), ErrorTypeEndpoint, false, 404},
		{"rate limit", errors.New("status code: 429, rate limit reached"), ErrorTypeRateLimit, true, 429},
		{"anthropic overloaded", errors.New("overloaded_error: Overloaded"), ErrorTypeRateLimit, true, 0},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTypeTimeout, true, 0},
		{"refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true, 0},
		{"bad gateway", errors.New("status code: 502"), ErrorTypeEndpoint, true, 502},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_KeepsExisting(t *testing.T) {
	orig := NewError(ErrorTypeResponse, "bad json", true, nil)
	wrapped := fmt.Errorf("round 2: %w", orig)

	assert.Same(t, orig, ClassifyError(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrorTypeResponse, GetErrorType(wrapped))
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyError_CancelIsNotRetryable(t *testing.T) {
	got := ClassifyError(context.Canceled)
	assert.False(t, got.Retryable)
	assert.False(t, IsRetryable(errors.New("plain")))
}
