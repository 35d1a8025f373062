package models

import "github.com/google/uuid"

// SessionState is the read view returned to callers of the session lifecycle.
type SessionState struct {
	SessionID         uuid.UUID         `json:"session_id"`
	Status            SessionStatus     `json:"status"`
	FailureReason     FailureReason     `json:"failure_reason,omitempty"`
	Fingerprint       string            `json:"fingerprint"`
	SourceType        SourceType        `json:"source_type,omitempty"`
	AdapterID         string            `json:"adapter_id,omitempty"`
	Round             int               `json:"round"`
	Coalesced         bool              `json:"coalesced,omitempty"`
	RetryOf           *uuid.UUID        `json:"retry_of,omitempty"`
	PendingQuestions  []PendingQuestion `json:"pending_questions,omitempty"`
	UnresolvedColumns []string          `json:"unresolved_columns,omitempty"`
	Proposals         []MappingProposal `json:"proposals,omitempty"`
	Flags             []ReviewFlag      `json:"flags,omitempty"`
	AggregateScore    float64           `json:"aggregate_score"`
	Risk              RiskLevel         `json:"risk,omitempty"`
	Summary           *ApprovalSummary  `json:"summary,omitempty"`
	LastError         string            `json:"last_error,omitempty"`
	CommitAttempts    int               `json:"commit_attempts,omitempty"`
}

// StateOf builds the read view of a session.
func StateOf(s *ImportSession) *SessionState {
	st := &SessionState{
		SessionID:      s.ID,
		Status:         s.Status,
		FailureReason:  s.FailureReason,
		Fingerprint:    s.ContentFingerprint,
		SourceType:     s.SourceType,
		AdapterID:      s.AdapterID,
		Round:          s.RoundNumber,
		RetryOf:        s.RetryOf,
		Proposals:      s.Proposals,
		Flags:          s.Flags,
		AggregateScore: s.AggregateScore,
		Risk:           s.Risk,
		LastError:      s.LastError,
		CommitAttempts: s.CommitAttempts,
	}
	if s.Status == SessionStatusRoundPending {
		st.PendingQuestions = s.Questions
		st.UnresolvedColumns = s.UnresolvedDecisions()
	}
	if s.Status == SessionStatusAwaitingApproval || s.Status == SessionStatusCommitting || s.Status == SessionStatusCommitted {
		st.Summary = s.Summary
	}
	return st
}
