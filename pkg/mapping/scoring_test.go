package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func testSchema() *models.DestinationSchema {
	return &models.DestinationSchema{
		Name: "inventory",
		Fields: []models.SchemaField{
			{Name: "part_number", Type: "string", Required: true},
			{Name: "quantity", Type: "integer", Required: true},
			{Name: "serial_number", Type: "string"},
			{Name: "description", Type: "string"},
		},
	}
}

func TestBaseConfidence(t *testing.T) {
	assert.InDelta(t, 0.81, BaseConfidence(f(0.9), f(0.6)), 1e-9)
	assert.InDelta(t, 0.9, BaseConfidence(f(0.9), nil), 1e-9)
	assert.InDelta(t, 0.6, BaseConfidence(nil, f(0.6)), 1e-9)
	assert.Equal(t, 0.0, BaseConfidence(nil, nil))
}

func TestLearnedBoost_Saturates(t *testing.T) {
	assert.Equal(t, 0.0, LearnedBoost(0))
	assert.InDelta(t, 0.05, LearnedBoost(1), 1e-9)
	assert.InDelta(t, 0.20, LearnedBoost(4), 1e-9)
	assert.InDelta(t, 0.20, LearnedBoost(1000), 1e-9)
}

func TestApplyBoost_NeverExceedsCeiling(t *testing.T) {
	assert.InDelta(t, 0.6, ApplyBoost(0.5, 0.1), 1e-9)
	assert.InDelta(t, LearnedCeiling, ApplyBoost(0.9, LearnedBoost(1000)), 1e-9)
	assert.InDelta(t, 0.97, ApplyBoost(0.97, 0.2), 1e-9, "boost never lowers a score")

	for times := 0; times < 100; times++ {
		assert.LessOrEqual(t, ApplyBoost(0.8, LearnedBoost(times)), LearnedCeiling)
	}
}

func TestScore(t *testing.T) {
	in := ScoreInput{
		Candidates: []Candidate{
			{SourceField: "Part #", TargetField: s("part_number"), ReasonerConfidence: f(0.9)},
			{SourceField: "Notes", ReasonerConfidence: f(0.85)},
			{SourceField: "Bin", ReasonerConfidence: f(0.4)},
			{SourceField: "Desc", TargetField: s("description"), ReasonerConfidence: f(0.3), Status: models.ProposalStatusConfirmed},
		},
		AdapterConfidence: map[string]float64{"Part #": 1.0, "Notes": 1.0},
		Coverage:          map[string]float64{"Part #": 1.0, "Notes": 0.5, "Desc": 0.8},
		Resolved:          map[string]bool{"Bin": true},
		Schema:            testSchema(),
	}

	got := Score(in)
	require.Len(t, got, 4)

	// 0.7*0.9 + 0.3*1.0 = 0.93, minus one missing required field (quantity).
	assert.InDelta(t, 0.88, got[0].Confidence, 1e-9)
	assert.Equal(t, models.ProposalStatusProposed, got[0].Status)
	assert.InDelta(t, 1.0, got[0].Coverage, 1e-9)

	// Unmapped: no adapter blend, no penalty.
	assert.InDelta(t, 0.85, got[1].Confidence, 1e-9)
	assert.False(t, got[1].IsMapped())

	// Unmapped with a recorded disposition is a human decision.
	assert.Equal(t, 1.0, got[2].Confidence)

	// User-confirmed overrides everything.
	assert.Equal(t, 1.0, got[3].Confidence)
	require.NotNil(t, got[3].RawConfidence)
	assert.InDelta(t, 0.3, *got[3].RawConfidence, 1e-9)
}

func TestScore_LearnedPatternBoostsOnlyMatchingTarget(t *testing.T) {
	schema := testSchema()
	candidates := []Candidate{
		{SourceField: "PN", TargetField: s("part_number"), ReasonerConfidence: f(0.7)},
		{SourceField: "Count", TargetField: s("quantity"), ReasonerConfidence: f(0.7)},
	}
	patterns := map[string]*models.LearnedPattern{
		"PN":    {TargetField: "part_number", TimesConfirmed: 2},
		"Count": {TargetField: "serial_number", TimesConfirmed: 9},
	}

	got := Score(ScoreInput{Candidates: candidates, Patterns: patterns, Schema: schema})
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
	assert.InDelta(t, 0.7, got[1].Confidence, 1e-9)
}

func TestScore_CapAppliesToUnconfirmed(t *testing.T) {
	got := Score(ScoreInput{
		Candidates: []Candidate{
			{SourceField: "part", TargetField: s("part_number"), ReasonerConfidence: f(0.99)},
			{SourceField: "qty", TargetField: s("quantity"), ReasonerConfidence: f(0.99), Status: models.ProposalStatusConfirmed},
		},
		Schema: testSchema(),
		Cap:    0.6,
	})
	assert.InDelta(t, 0.6, got[0].Confidence, 1e-9)
	assert.Equal(t, 1.0, got[1].Confidence)
}

func TestMissingRequired(t *testing.T) {
	got := MissingRequired([]Candidate{{SourceField: "x", TargetField: s("part_number")}, {SourceField: "y"}}, testSchema())
	assert.Equal(t, []string{"quantity"}, got)
	assert.Nil(t, MissingRequired(nil, nil))
}

func TestAggregate_WeightsByCoverage(t *testing.T) {
	wide := models.MappingProposal{SourceField: "a", TargetField: s("part_number"), Confidence: 0.5, Coverage: 0.9}
	narrow := models.MappingProposal{SourceField: "b", TargetField: s("description"), Confidence: 0.3, Coverage: 0.02}
	unmapped := models.MappingProposal{SourceField: "c", Confidence: 0.0, Coverage: 1.0}

	got := Aggregate([]models.MappingProposal{wide, narrow, unmapped})
	assert.InDelta(t, 0.55, got, 1e-9, "the wide low-confidence mapping dominates")

	assert.Equal(t, 0.0, Aggregate([]models.MappingProposal{unmapped}))
	assert.Equal(t, 0.0, Aggregate(nil))
}

func TestRisk(t *testing.T) {
	assert.Equal(t, models.RiskLow, Risk(0.85))
	assert.Equal(t, models.RiskLow, Risk(1))
	assert.Equal(t, models.RiskMedium, Risk(0.84))
	assert.Equal(t, models.RiskMedium, Risk(0.60))
	assert.Equal(t, models.RiskHigh, Risk(0.59))
}

func TestBelowThreshold(t *testing.T) {
	got := BelowThreshold([]models.MappingProposal{
		{SourceField: "a", Confidence: 0.8},
		{SourceField: "b", Confidence: 0.79},
	})
	assert.Equal(t, []string{"b"}, got)
}

func TestPropose(t *testing.T) {
	schema := testSchema()
	patterns := map[string]*models.LearnedPattern{
		"Ref": {Signature: "inventory:ref", TargetField: "part_number", TimesConfirmed: 3},
	}

	got := Propose([]string{"Ref", "Qty", "Colour"}, schema, patterns)
	require.Len(t, got, 3)

	assert.Equal(t, "part_number", *got[0].TargetField)
	assert.Equal(t, "learned pattern", got[0].Reasoning)

	assert.Equal(t, "quantity", *got[1].TargetField)
	assert.Equal(t, 1.0, *got[1].ReasonerConfidence)

	assert.Nil(t, got[2].TargetField)
}
