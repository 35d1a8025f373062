// Package models contains the domain types of ekaya-intake import sessions.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Source Types
// ============================================================================

// SourceType is the closed set of source kinds an upload can be routed to.
type SourceType string

const (
	SourceTypeTabular  SourceType = "tabular"
	SourceTypeDocument SourceType = "document"
	SourceTypeImage    SourceType = "image"
	SourceTypeFreeText SourceType = "free_text"
)

// ValidSourceTypes contains all valid source type values.
var ValidSourceTypes = []SourceType{
	SourceTypeTabular,
	SourceTypeDocument,
	SourceTypeImage,
	SourceTypeFreeText,
}

// IsValidSourceType checks if the given source type is valid.
func IsValidSourceType(t SourceType) bool {
	for _, v := range ValidSourceTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Session Status
// ============================================================================

// SessionStatus is the state of an import session.
// State machine:
//
//	created → detecting → extracting → analyzing → gate_check → awaiting_approval → committing → committed
//	                                       ↑  ↓          ↓
//	                                   round_pending ←───┘
//
//	Any non-terminal state can transition to: failed, cancelled
type SessionStatus string

const (
	SessionStatusCreated          SessionStatus = "created"
	SessionStatusDetecting        SessionStatus = "detecting"
	SessionStatusExtracting       SessionStatus = "extracting"
	SessionStatusAnalyzing        SessionStatus = "analyzing"
	SessionStatusRoundPending     SessionStatus = "round_pending"
	SessionStatusGateCheck        SessionStatus = "gate_check"
	SessionStatusAwaitingApproval SessionStatus = "awaiting_approval"
	SessionStatusCommitting       SessionStatus = "committing"
	SessionStatusCommitted        SessionStatus = "committed"
	SessionStatusFailed           SessionStatus = "failed"
	SessionStatusCancelled        SessionStatus = "cancelled"
)

// ValidSessionStatuses contains all valid status values.
var ValidSessionStatuses = []SessionStatus{
	SessionStatusCreated,
	SessionStatusDetecting,
	SessionStatusExtracting,
	SessionStatusAnalyzing,
	SessionStatusRoundPending,
	SessionStatusGateCheck,
	SessionStatusAwaitingApproval,
	SessionStatusCommitting,
	SessionStatusCommitted,
	SessionStatusFailed,
	SessionStatusCancelled,
}

// TerminalSessionStatuses are the statuses a session never leaves.
var TerminalSessionStatuses = []SessionStatus{
	SessionStatusCommitted,
	SessionStatusFailed,
	SessionStatusCancelled,
}

// IsValidSessionStatus checks if the given status is valid.
func IsValidSessionStatus(s SessionStatus) bool {
	for _, v := range ValidSessionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for committed, failed and cancelled.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCommitted || s == SessionStatusFailed || s == SessionStatusCancelled
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == SessionStatusFailed || target == SessionStatusCancelled {
		return true
	}

	switch s {
	case SessionStatusCreated:
		return target == SessionStatusDetecting
	case SessionStatusDetecting:
		return target == SessionStatusExtracting
	case SessionStatusExtracting:
		return target == SessionStatusAnalyzing
	case SessionStatusAnalyzing:
		return target == SessionStatusRoundPending || target == SessionStatusGateCheck
	case SessionStatusRoundPending:
		return target == SessionStatusAnalyzing
	case SessionStatusGateCheck:
		return target == SessionStatusAwaitingApproval || target == SessionStatusRoundPending
	case SessionStatusAwaitingApproval:
		return target == SessionStatusCommitting
	case SessionStatusCommitting:
		return target == SessionStatusCommitted
	default:
		return false
	}
}

// AcceptsUserInput is true while answers, dispositions and mapping overrides
// may still change the session.
func (s SessionStatus) AcceptsUserInput() bool {
	return s == SessionStatusRoundPending || s == SessionStatusAnalyzing || s == SessionStatusGateCheck
}

// ============================================================================
// Failure Reasons
// ============================================================================

// FailureReason explains a failed session.
type FailureReason string

const (
	FailureReasonNone              FailureReason = ""
	FailureReasonUnsupportedSource FailureReason = "unsupported_source_type"
	FailureReasonExtractionError   FailureReason = "extraction_error"
	FailureReasonNeedsManualReview FailureReason = "needs_manual_review"
	FailureReasonCommitError       FailureReason = "commit_error"
)

// ============================================================================
// Import Session
// ============================================================================

// ImportSession is the unit of work for one uploaded source document.
// The accumulated context log is persisted separately (append-only) and is
// loaded into Context by the repository.
type ImportSession struct {
	ID                 uuid.UUID                `json:"id"`
	ContentFingerprint string                   `json:"content_fingerprint"`
	Filename           string                   `json:"filename,omitempty"`
	SourceType         SourceType               `json:"source_type,omitempty"`
	AdapterID          string                   `json:"adapter_id,omitempty"`
	Status             SessionStatus            `json:"status"`
	FailureReason      FailureReason            `json:"failure_reason,omitempty"`
	FailureDetail      string                   `json:"failure_detail,omitempty"`
	LastError          string                   `json:"last_error,omitempty"` // retryable, round-scoped error code
	RoundNumber        int                      `json:"round_number"`
	Context            []ContextEntry           `json:"context,omitempty"`
	SourceFields       []string                 `json:"source_fields,omitempty"`
	FieldConfidence    map[string]float64       `json:"field_confidence,omitempty"`
	Coverage           map[string]float64       `json:"coverage,omitempty"`
	SourceItems        []CandidateItem          `json:"source_items,omitempty"` // as extracted; never rewritten
	Items              []CandidateItem          `json:"items,omitempty"`        // after projection and derivation
	Proposals          []MappingProposal        `json:"proposals,omitempty"`
	Decisions          []UnmappedColumnDecision `json:"decisions,omitempty"`
	Flags              []ReviewFlag             `json:"flags,omitempty"`
	Questions          []PendingQuestion        `json:"questions,omitempty"`
	AggregateScore     float64                  `json:"aggregate_score"`
	Risk               RiskLevel                `json:"risk,omitempty"`
	Summary            *ApprovalSummary         `json:"summary,omitempty"`
	SchemaName         string                   `json:"schema_name,omitempty"`
	CommitAttempts     int                      `json:"commit_attempts"`
	RetryOf            *uuid.UUID               `json:"retry_of,omitempty"`
	ConfirmedAt        *time.Time               `json:"confirmed_at,omitempty"`
	CommittedAt        *time.Time               `json:"committed_at,omitempty"`
	Version            int                      `json:"version"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// ComputeFingerprint returns the sha256 hex digest of the source bytes.
func ComputeFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HasUserAnswer reports whether any user-authored entry is in the context log.
func (s *ImportSession) HasUserAnswer() bool {
	for _, e := range s.Context {
		if e.Kind.IsUserAuthored() {
			return true
		}
	}
	return false
}

// NextContextSeq returns the sequence number for the next context entry.
func (s *ImportSession) NextContextSeq() int {
	if len(s.Context) == 0 {
		return 1
	}
	return s.Context[len(s.Context)-1].Seq + 1
}

// Proposal returns the proposal for a source field, or nil.
func (s *ImportSession) Proposal(sourceField string) *MappingProposal {
	for i := range s.Proposals {
		if s.Proposals[i].SourceField == sourceField {
			return &s.Proposals[i]
		}
	}
	return nil
}

// Decision returns the unmapped-column decision for a source field, or nil.
func (s *ImportSession) Decision(sourceField string) *UnmappedColumnDecision {
	for i := range s.Decisions {
		if s.Decisions[i].SourceField == sourceField {
			return &s.Decisions[i]
		}
	}
	return nil
}

// UnresolvedDecisions returns the source fields whose disposition has not been chosen.
func (s *ImportSession) UnresolvedDecisions() []string {
	var out []string
	for _, d := range s.Decisions {
		if !d.Resolved {
			out = append(out, d.SourceField)
		}
	}
	return out
}
