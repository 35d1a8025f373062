package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies backend failures.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth_error"
	ErrorTypeModel     ErrorType = "model_error"
	ErrorTypeEndpoint  ErrorType = "endpoint_error"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limited"
	ErrorTypeResponse  ErrorType = "invalid_response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified backend error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
}

func (e *Error) Error() string {
	msg := string(e.Type)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" HTTP %d", e.StatusCode)
	}
	msg += " " + e.Message
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable lets the retry package check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

type classifyRule struct {
	errType   ErrorType
	message   string
	retryable bool
	needles   []string // lowercase substrings, any match
}

// Order matters: the first matching rule wins.
var classifyRules = []classifyRule{
	{ErrorTypeAuth, "authentication failed", false, []string{"401", "unauthorized", "invalid api key", "invalid x-api-key", "permission denied"}},
	{ErrorTypeModel, "model not found", false, []string{"model not found", "model does not exist", "not_found_error"}},
	{ErrorTypeEndpoint, "endpoint not found", false, []string{"404"}},
	{ErrorTypeRateLimit, "rate limited", true, []string{"429", "rate limit", "overloaded", "resource_exhausted"}},
	{ErrorTypeTimeout, "request timeout", true, []string{"timeout", "deadline exceeded"}},
	{ErrorTypeEndpoint, "connection failed", true, []string{"connection refused", "no such host", "connection reset", "eof"}},
	{ErrorTypeEndpoint, "server error", true, []string{"500", "502", "503", "504", "internal server error", "bad gateway"}},
}

var knownStatusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeUnknown, "request cancelled", false, err)
	}

	text := err.Error()
	lower := strings.ToLower(text)

	status := 0
	for _, code := range knownStatusCodes {
		if strings.Contains(text, fmt.Sprintf("%d", code)) {
			status = code
			break
		}
	}

	for _, rule := range classifyRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				e := NewError(rule.errType, rule.message, rule.retryable, err)
				e.StatusCode = status
				return e
			}
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = status
	return e
}

// IsRetryable returns true if the error is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
