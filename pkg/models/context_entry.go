package models

import "time"

// ContextEntryKind identifies what a context log entry holds.
type ContextEntryKind string

const (
	ContextKindSourceSample      ContextEntryKind = "source_sample"
	ContextKindSchema            ContextEntryKind = "destination_schema"
	ContextKindLearnedPatterns   ContextEntryKind = "learned_patterns"
	ContextKindQuestions         ContextEntryKind = "questions"
	ContextKindUserAnswer        ContextEntryKind = "user_answer"
	ContextKindColumnDisposition ContextEntryKind = "column_disposition"
	ContextKindMappingOverride   ContextEntryKind = "mapping_override"
)

// IsUserAuthored returns true for entries that record a user action.
func (k ContextEntryKind) IsUserAuthored() bool {
	return k == ContextKindUserAnswer || k == ContextKindColumnDisposition || k == ContextKindMappingOverride
}

// ContextEntry is one element of a session's append-only context log.
// Seq is strictly increasing within a session.
type ContextEntry struct {
	Seq       int              `json:"seq"`
	Round     int              `json:"round"`
	Kind      ContextEntryKind `json:"kind"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
}
