package rules

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// GateResult is the outcome of the deterministic pre-approval gates.
type GateResult struct {
	UnresolvedColumns []string
	GatingFlags       []models.ReviewFlag
	Questions         []models.PendingQuestion
}

// Passed is true only when both gates hold.
func (r GateResult) Passed() bool {
	return len(r.UnresolvedColumns) == 0 && len(r.GatingFlags) == 0
}

// SyncDecisions returns exactly one decision per unmapped proposal. Existing
// decisions are kept; columns that became mapped lose theirs; new unmapped
// columns start unresolved.
func SyncDecisions(proposals []models.MappingProposal, existing []models.UnmappedColumnDecision) []models.UnmappedColumnDecision {
	prev := make(map[string]models.UnmappedColumnDecision, len(existing))
	for _, d := range existing {
		prev[d.SourceField] = d
	}

	var out []models.UnmappedColumnDecision
	for _, p := range proposals {
		if p.IsMapped() {
			continue
		}
		if d, ok := prev[p.SourceField]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, models.UnmappedColumnDecision{SourceField: p.SourceField})
	}
	return out
}

// Evaluate checks the unmapped-column gate and the conflict gate. Both are
// evaluated every time so the user sees every blocker at once.
func Evaluate(decisions []models.UnmappedColumnDecision, flags []models.ReviewFlag) GateResult {
	var res GateResult

	for _, d := range decisions {
		if d.Resolved && models.IsValidDisposition(d.Disposition) {
			continue
		}
		res.UnresolvedColumns = append(res.UnresolvedColumns, d.SourceField)
	}
	for _, f := range flags {
		if f.Kind.Gating() {
			res.GatingFlags = append(res.GatingFlags, f)
		}
	}

	res.Questions = UnmappedQuestions(res.UnresolvedColumns)
	for _, f := range res.GatingFlags {
		res.Questions = append(res.Questions, conflictQuestion(f))
	}
	return res
}

// UnmappedQuestions synthesizes one disposition question per unresolved column.
func UnmappedQuestions(columns []string) []models.PendingQuestion {
	if len(columns) == 0 {
		return nil
	}
	options := make([]string, len(models.ValidDispositions))
	for i, d := range models.ValidDispositions {
		options[i] = string(d)
	}

	qs := make([]models.PendingQuestion, 0, len(columns))
	for _, col := range columns {
		qs = append(qs, models.PendingQuestion{
			ID:          "unmapped:" + col,
			Kind:        models.QuestionKindUnmappedColumn,
			SourceField: col,
			Text: fmt.Sprintf("%d column(s) are unmapped. Column %q has no target field; choose a disposition.",
				len(columns), col),
			Options: options,
		})
	}
	return qs
}

func conflictQuestion(f models.ReviewFlag) models.PendingQuestion {
	subject := f.PartNumber
	if f.SerialNumber != "" {
		subject = f.SerialNumber
	}
	text := f.Detail + ". Please state the correct values."
	if f.Kind == models.FlagKindQuantityConflict {
		text = fmt.Sprintf("%s. What is the correct total quantity of part %q?", f.Detail, f.PartNumber)
	}
	return models.PendingQuestion{
		ID:         fmt.Sprintf("conflict:%s:%s", f.Kind, subject),
		Kind:       models.QuestionKindConflict,
		PartNumber: f.PartNumber,
		Text:       text,
	}
}
