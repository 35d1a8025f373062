package models

// ============================================================================
// Mapping Proposals
// ============================================================================

// ProposalStatus tracks who stands behind a mapping proposal.
type ProposalStatus string

const (
	ProposalStatusProposed  ProposalStatus = "proposed"
	ProposalStatusConfirmed ProposalStatus = "confirmed"
	ProposalStatusRejected  ProposalStatus = "rejected"
)

// MappingProposal maps one source column/field to a target-schema field.
// A nil TargetField means the column is unmapped.
type MappingProposal struct {
	SourceField   string         `json:"source_field"`
	TargetField   *string        `json:"target_field"`
	Confidence    float64        `json:"confidence"`
	Status        ProposalStatus `json:"status"`
	Coverage      float64        `json:"coverage"`
	Reasoning     string         `json:"reasoning,omitempty"`
	RawConfidence *float64       `json:"raw_confidence,omitempty"` // reasoner-side, before scoring
}

// IsMapped returns true if the proposal has a target field.
func (p *MappingProposal) IsMapped() bool {
	return p.TargetField != nil && *p.TargetField != ""
}

// Target returns the target field name or an empty string.
func (p *MappingProposal) Target() string {
	if p.TargetField == nil {
		return ""
	}
	return *p.TargetField
}

// ============================================================================
// Unmapped Column Decisions
// ============================================================================

// Disposition is what to do with a source column that has no target field.
type Disposition string

const (
	DispositionIgnore              Disposition = "ignore"
	DispositionStoreAsMetadata     Disposition = "store_as_metadata"
	DispositionRequestSchemaUpdate Disposition = "request_schema_update"
)

// ValidDispositions contains all valid disposition values.
var ValidDispositions = []Disposition{
	DispositionIgnore,
	DispositionStoreAsMetadata,
	DispositionRequestSchemaUpdate,
}

// IsValidDisposition checks if the given disposition is valid.
func IsValidDisposition(d Disposition) bool {
	for _, v := range ValidDispositions {
		if v == d {
			return true
		}
	}
	return false
}

// UnmappedColumnDecision records the explicit disposition for an unmapped column.
// Resolved is only set by a user action; an empty disposition is never read as ignore.
type UnmappedColumnDecision struct {
	SourceField string      `json:"source_field"`
	Disposition Disposition `json:"disposition,omitempty"`
	Resolved    bool        `json:"resolved"`
}
