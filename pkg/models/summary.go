package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RiskLevel buckets the aggregate session score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SummaryMapping is one mapping line of the approval summary.
type SummaryMapping struct {
	SourceField string  `json:"source_field"`
	TargetField string  `json:"target_field"`
	Confidence  float64 `json:"confidence"`
	Status      string  `json:"status"`
}

// SummaryDerivation records a quantity derived from serial numbers.
type SummaryDerivation struct {
	PartNumber    string   `json:"part_number"`
	Quantity      int      `json:"quantity"`
	SerialNumbers []string `json:"serial_numbers"`
}

// ApprovalSummary is the non-mutating overview shown before the explicit confirm.
// Digest covers every other field; Confirm must echo it.
type ApprovalSummary struct {
	ItemCount      int                    `json:"item_count"`
	PartCount      int                    `json:"part_count"`
	TotalQuantity  int                    `json:"total_quantity"`
	Mappings       []SummaryMapping       `json:"mappings"`
	Dispositions   map[string]Disposition `json:"dispositions,omitempty"`
	Derivations    []SummaryDerivation    `json:"derivations,omitempty"`
	Flags          []ReviewFlag           `json:"flags,omitempty"`
	AggregateScore float64                `json:"aggregate_score"`
	Risk           RiskLevel              `json:"risk"`
	Digest         string                 `json:"digest"`
}

// ComputeDigest hashes the summary content (excluding Digest itself).
func (s *ApprovalSummary) ComputeDigest() string {
	cp := *s
	cp.Digest = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
