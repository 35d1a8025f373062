package mapping

import (
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Scoring policy. These are fixed business rules, not configuration.
const (
	// AcceptanceThreshold is the minimum confidence for every proposal before
	// the gates are evaluated.
	AcceptanceThreshold = 0.80

	reasonerWeight = 0.7
	adapterWeight  = 0.3

	LearnedBoostPerConfirmation = 0.05
	LearnedBoostMax             = 0.20
	// LearnedCeiling keeps learned boosts below certainty so a human override
	// always outranks history.
	LearnedCeiling = 0.95

	MissingRequiredPenalty = 0.05

	RiskLowMin    = 0.85
	RiskMediumMin = 0.60

	// HeuristicMinSimilarity is the lowest name similarity used for an
	// initial mapping guess.
	HeuristicMinSimilarity = 0.6
)

// BaseConfidence combines the reasoner's and the adapter's confidence. A nil
// input means that side has no opinion and the other is used alone.
func BaseConfidence(reasoner, adapter *float64) float64 {
	switch {
	case reasoner != nil && adapter != nil:
		return reasonerWeight*(*reasoner) + adapterWeight*(*adapter)
	case reasoner != nil:
		return *reasoner
	case adapter != nil:
		return *adapter
	default:
		return 0
	}
}

// LearnedBoost is proportional to timesConfirmed and saturates at LearnedBoostMax.
func LearnedBoost(timesConfirmed int) float64 {
	if timesConfirmed <= 0 {
		return 0
	}
	b := LearnedBoostPerConfirmation * float64(timesConfirmed)
	if b > LearnedBoostMax {
		return LearnedBoostMax
	}
	return b
}

// ApplyBoost adds a learned boost without letting it lift the score past
// LearnedCeiling. A score already above the ceiling is left unchanged.
func ApplyBoost(base, boost float64) float64 {
	if boost <= 0 {
		return base
	}
	boosted := base + boost
	if boosted > LearnedCeiling {
		boosted = LearnedCeiling
	}
	if base > boosted {
		return base
	}
	return boosted
}

// Candidate is an unscored mapping as proposed by the reasoner or heuristics.
type Candidate struct {
	SourceField        string
	TargetField        *string
	ReasonerConfidence *float64
	Status             models.ProposalStatus
	Reasoning          string
}

// ScoreInput carries everything needed to score one round's proposals.
type ScoreInput struct {
	Candidates        []Candidate
	AdapterConfidence map[string]float64                // by source field
	Coverage          map[string]float64                // by source field
	Patterns          map[string]*models.LearnedPattern // by source field
	Resolved          map[string]bool                   // unmapped columns with a recorded disposition
	Schema            *models.DestinationSchema
	// Cap limits every non-confirmed score; zero disables it.
	Cap float64
}

// Score turns candidates into MappingProposals with final confidence.
//
// User-confirmed proposals and unmapped columns with a recorded disposition
// score 1.0. Everything else gets the weighted base, a learned boost when the
// pattern agrees on the target, and a penalty per required target field no
// proposal maps to.
func Score(in ScoreInput) []models.MappingProposal {
	missing := len(MissingRequired(in.Candidates, in.Schema))
	penalty := MissingRequiredPenalty * float64(missing)

	out := make([]models.MappingProposal, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		p := models.MappingProposal{
			SourceField:   c.SourceField,
			TargetField:   c.TargetField,
			Status:        c.Status,
			Coverage:      in.Coverage[c.SourceField],
			Reasoning:     c.Reasoning,
			RawConfidence: c.ReasonerConfidence,
		}
		if p.Status == "" {
			p.Status = models.ProposalStatusProposed
		}

		switch {
		case p.Status == models.ProposalStatusConfirmed:
			p.Confidence = 1.0
		case !p.IsMapped() && in.Resolved[c.SourceField]:
			p.Confidence = 1.0
		default:
			var adapter *float64
			if v, ok := in.AdapterConfidence[c.SourceField]; ok && p.IsMapped() {
				adapter = &v
			}
			conf := BaseConfidence(c.ReasonerConfidence, adapter)
			if pat := in.Patterns[c.SourceField]; pat != nil && p.IsMapped() && pat.TargetField == p.Target() {
				conf = ApplyBoost(conf, LearnedBoost(pat.TimesConfirmed))
			}
			if p.IsMapped() {
				conf -= penalty
			}
			if in.Cap > 0 && conf > in.Cap {
				conf = in.Cap
			}
			p.Confidence = clamp01(conf)
		}
		out = append(out, p)
	}
	return out
}

// MissingRequired lists required schema fields that no candidate maps to.
func MissingRequired(candidates []Candidate, schema *models.DestinationSchema) []string {
	if schema == nil {
		return nil
	}
	mapped := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.TargetField != nil && *c.TargetField != "" {
			mapped[*c.TargetField] = true
		}
	}
	var out []string
	for _, f := range schema.RequiredFields() {
		if !mapped[f] {
			out = append(out, f)
		}
	}
	return out
}

// Aggregate is the session score: the minimum over mapped proposals of
// 1 − (1 − confidence) × coverage, so a weak mapping that touches most rows
// dominates one that touches few. No mapped proposals yields 0.
func Aggregate(proposals []models.MappingProposal) float64 {
	score, mapped := 1.0, false
	for _, p := range proposals {
		if !p.IsMapped() {
			continue
		}
		mapped = true
		weighted := 1 - (1-p.Confidence)*p.Coverage
		if weighted < score {
			score = weighted
		}
	}
	if !mapped {
		return 0
	}
	return score
}

// Risk buckets an aggregate score.
func Risk(score float64) models.RiskLevel {
	switch {
	case score >= RiskLowMin:
		return models.RiskLow
	case score >= RiskMediumMin:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// BelowThreshold returns the source fields whose confidence is under the
// acceptance threshold.
func BelowThreshold(proposals []models.MappingProposal) []string {
	var out []string
	for _, p := range proposals {
		if p.Confidence < AcceptanceThreshold {
			out = append(out, p.SourceField)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
