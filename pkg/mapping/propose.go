package mapping

import (
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Propose builds the initial candidates for a session before the reasoner
// has spoken: a learned pattern wins, otherwise the closest schema field by
// name if it is similar enough, otherwise the column is left unmapped. The
// name similarity becomes the candidate's reasoner-side confidence.
func Propose(sourceFields []string, schema *models.DestinationSchema, patterns map[string]*models.LearnedPattern) []Candidate {
	targets := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		targets = append(targets, f.Name)
	}

	out := make([]Candidate, 0, len(sourceFields))
	for _, field := range sourceFields {
		c := Candidate{SourceField: field, Status: models.ProposalStatusProposed}

		if pat := patterns[field]; pat != nil && schema.HasField(pat.TargetField) {
			target := pat.TargetField
			sim := NameSimilarity(field, target)
			c.TargetField = &target
			c.ReasonerConfidence = &sim
			c.Reasoning = "learned pattern"
			out = append(out, c)
			continue
		}

		if best, sim := BestTarget(field, targets); best != "" && sim >= HeuristicMinSimilarity {
			c.TargetField = &best
			c.ReasonerConfidence = &sim
			c.Reasoning = "name similarity"
		}
		out = append(out, c)
	}
	return out
}

// FromProposals converts scored proposals back into candidates so a later
// round can re-score them.
func FromProposals(proposals []models.MappingProposal) []Candidate {
	out := make([]Candidate, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, Candidate{
			SourceField:        p.SourceField,
			TargetField:        p.TargetField,
			ReasonerConfidence: p.RawConfidence,
			Status:             p.Status,
			Reasoning:          p.Reasoning,
		})
	}
	return out
}
