package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func target(s string) *string { return &s }

func TestSyncDecisions(t *testing.T) {
	proposals := []models.MappingProposal{
		{SourceField: "Part", TargetField: target("part_number")},
		{SourceField: "Notes"},
		{SourceField: "Color"},
	}
	existing := []models.UnmappedColumnDecision{
		{SourceField: "Notes", Disposition: models.DispositionStoreAsMetadata, Resolved: true},
		{SourceField: "Part", Disposition: models.DispositionIgnore, Resolved: true},
	}

	got := SyncDecisions(proposals, existing)

	assert.Equal(t, []models.UnmappedColumnDecision{
		{SourceField: "Notes", Disposition: models.DispositionStoreAsMetadata, Resolved: true},
		{SourceField: "Color"},
	}, got)
}

func TestEvaluate_SilenceIsNotIgnore(t *testing.T) {
	res := Evaluate([]models.UnmappedColumnDecision{
		{SourceField: "Notes"},
		{SourceField: "Color", Disposition: models.DispositionIgnore},
		{SourceField: "Bin", Disposition: models.DispositionIgnore, Resolved: true},
	}, nil)

	assert.False(t, res.Passed())
	assert.Equal(t, []string{"Notes", "Color"}, res.UnresolvedColumns)
	require.Len(t, res.Questions, 2)
	assert.Equal(t, models.QuestionKindUnmappedColumn, res.Questions[0].Kind)
	assert.Contains(t, res.Questions[0].Text, "2 column(s) are unmapped")
	assert.Equal(t, []string{"ignore", "store_as_metadata", "request_schema_update"}, res.Questions[0].Options)
}

func TestEvaluate_GatesAreConjunctive(t *testing.T) {
	resolved := []models.UnmappedColumnDecision{
		{SourceField: "Notes", Disposition: models.DispositionIgnore, Resolved: true},
	}
	conflict := []models.ReviewFlag{
		{Kind: models.FlagKindQuantityConflict, PartNumber: "B", Detail: "part B has conflicting quantities 5 and 7"},
		{Kind: models.FlagKindSuspiciousValue, PartNumber: "A", Detail: "x"},
	}

	res := Evaluate(resolved, conflict)
	assert.False(t, res.Passed())
	require.Len(t, res.Questions, 1)
	assert.Equal(t, models.QuestionKindConflict, res.Questions[0].Kind)
	assert.Equal(t, "conflict:quantity_conflict:B", res.Questions[0].ID)
	assert.Equal(t, `part B has conflicting quantities 5 and 7. What is the correct total quantity of part "B"?`, res.Questions[0].Text)

	res = Evaluate(resolved, conflict[1:])
	assert.True(t, res.Passed(), "non-gating flags do not block")
	assert.Empty(t, res.Questions)
}
