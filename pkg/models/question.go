package models

// QuestionKind identifies why a question is pending.
type QuestionKind string

const (
	// QuestionKindClarification is a question asked by the reasoning backend.
	QuestionKindClarification QuestionKind = "clarification"
	// QuestionKindLowConfidence asks the user to confirm or correct a weak mapping.
	QuestionKindLowConfidence QuestionKind = "low_confidence"
	// QuestionKindUnmappedColumn asks for a disposition of an unmapped column.
	QuestionKindUnmappedColumn QuestionKind = "unmapped_column"
	// QuestionKindConflict asks the user to settle a quantity or serial conflict.
	QuestionKindConflict QuestionKind = "conflict"
)

// PendingQuestion is surfaced to the user while a session is in round_pending.
type PendingQuestion struct {
	ID          string       `json:"id"`
	Kind        QuestionKind `json:"kind"`
	Text        string       `json:"text"`
	SourceField string       `json:"source_field,omitempty"`
	PartNumber  string       `json:"part_number,omitempty"`
	Options     []string     `json:"options,omitempty"`
}

// OnlyUnmappedColumnQuestions reports whether every question is an
// unmapped-column disposition request.
func OnlyUnmappedColumnQuestions(qs []PendingQuestion) bool {
	if len(qs) == 0 {
		return false
	}
	for _, q := range qs {
		if q.Kind != QuestionKindUnmappedColumn {
			return false
		}
	}
	return true
}
