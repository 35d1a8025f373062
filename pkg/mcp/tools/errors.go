package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a successful tool result so the agent sees the
// code and can act on it instead of the client swallowing it.
type ErrorResponse struct {
	Error       bool   `json:"error"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
	Details     any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for actionable errors (invalid parameters, unknown session,
// wrong lifecycle state). System failures still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message})
}

// NewErrorResultWithDetails creates an error result with additional context,
// typically the session state at the time of the failure.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message, Details: details})
}

func newErrorResult(resp ErrorResponse) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorResultFor converts a lifecycle error into a tool result. It returns
// nil for errors with no domain code; those should surface as Go errors.
func ErrorResultFor(err error, details any) *mcp.CallToolResult {
	code := apperrors.Code(err)
	if code == "" || code == "internal_error" {
		return nil
	}
	resp := ErrorResponse{Error: true, Code: code, Message: err.Error(), Details: details}
	var se *apperrors.SessionError
	if errors.As(err, &se) {
		resp.Fingerprint = se.Fingerprint
		resp.Retryable = se.Retryable
	}
	return newErrorResult(resp)
}
