package models

// FlagKind classifies a review flag raised by the business rules.
type FlagKind string

const (
	FlagKindQuantityConflict FlagKind = "quantity_conflict"
	FlagKindSerialConflict   FlagKind = "serial_conflict"
	FlagKindSuspiciousValue  FlagKind = "suspicious_value"
	FlagKindMissingPart      FlagKind = "missing_part_number"
)

// Gating returns true if the flag blocks the gate until the user resolves it.
func (k FlagKind) Gating() bool {
	return k == FlagKindQuantityConflict || k == FlagKindSerialConflict || k == FlagKindMissingPart
}

// ReviewFlag is a rule finding attached to a part number, serial or row.
type ReviewFlag struct {
	Kind         FlagKind `json:"kind"`
	PartNumber   string   `json:"part_number,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
	SourceField  string   `json:"source_field,omitempty"`
	Rows         []int    `json:"rows,omitempty"`
	Detail       string   `json:"detail"`
}

// HasGatingFlags reports whether any flag blocks the gate.
func HasGatingFlags(flags []ReviewFlag) bool {
	for _, f := range flags {
		if f.Kind.Gating() {
			return true
		}
	}
	return false
}
