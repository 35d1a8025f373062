package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStaleApproval     = errors.New("approval digest does not match current summary")
	ErrInvalidArgument   = errors.New("invalid argument")

	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrExtraction            = errors.New("extraction failed")
	ErrReasoningTimeout      = errors.New("reasoning timed out")
	ErrReasoning             = errors.New("reasoning failed")
	ErrRoundLimitExceeded    = errors.New("round limit exceeded")
	ErrUnresolvedGate        = errors.New("unresolved gate")
	ErrCommit                = errors.New("commit failed")
	ErrLearningLoop          = errors.New("learning loop failed")
)

// SessionError is the user-visible failure for an import session. It always
// carries the content fingerprint so a resubmission is recognized as a retry.
type SessionError struct {
	Kind        error
	SessionID   string
	Fingerprint string
	Retryable   bool
	Cause       error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session %s (fingerprint %s): %v: %v", e.SessionID, e.Fingerprint, e.Kind, e.Cause)
	}
	return fmt.Sprintf("session %s (fingerprint %s): %v", e.SessionID, e.Fingerprint, e.Kind)
}

// Is matches on Kind so errors.Is(err, ErrCommit) works on a *SessionError.
func (e *SessionError) Is(target error) bool {
	return e.Kind == target
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *SessionError) IsRetryable() bool {
	return e.Retryable
}

// NewSessionError builds a SessionError. Retryability follows the kind unless
// the caller overrides it afterwards.
func NewSessionError(kind error, sessionID, fingerprint string, cause error) *SessionError {
	return &SessionError{
		Kind:        kind,
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		Retryable:   kind == ErrReasoningTimeout || kind == ErrReasoning || kind == ErrCommit,
		Cause:       cause,
	}
}

// Code returns a stable machine-readable code for an error, used by the HTTP
// and MCP surfaces.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStaleApproval):
		return "stale_approval"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnsupportedSourceType):
		return "unsupported_source_type"
	case errors.Is(err, ErrExtraction):
		return "extraction_error"
	case errors.Is(err, ErrReasoningTimeout):
		return "reasoning_timeout"
	case errors.Is(err, ErrReasoning):
		return "reasoning_error"
	case errors.Is(err, ErrRoundLimitExceeded):
		return "needs_manual_review"
	case errors.Is(err, ErrUnresolvedGate):
		return "unresolved_gate"
	case errors.Is(err, ErrCommit):
		return "commit_error"
	default:
		return "internal_error"
	}
}
