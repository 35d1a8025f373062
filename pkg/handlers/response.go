package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
)

// ApiResponse is the envelope for successful responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionErrorBody is returned when a session operation fails. The
// fingerprint lets a client recognize a resubmission of the same file.
type SessionErrorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Retryable   bool   `json:"retryable"`
	Data        any    `json:"data,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrStaleApproval):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnsupportedSourceType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, apperrors.ErrExtraction),
		errors.Is(err, apperrors.ErrRoundLimitExceeded),
		errors.Is(err, apperrors.ErrUnresolvedGate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrReasoningTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrReasoning),
		errors.Is(err, apperrors.ErrCommit):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with its mapped status. data, when non-nil,
// is the session state at the time of failure.
func WriteServiceError(w http.ResponseWriter, err error, data any) error {
	status := StatusFor(err)
	body := SessionErrorBody{
		Error:   apperrors.Code(err),
		Message: err.Error(),
		Data:    data,
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	var se *apperrors.SessionError
	if errors.As(err, &se) {
		body.Fingerprint = se.Fingerprint
		body.Retryable = se.Retryable
	}
	return WriteJSON(w, status, body)
}
