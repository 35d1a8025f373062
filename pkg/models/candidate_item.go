package models

// CandidateItem is one row or record extracted from a source document.
// Quantity stays nil until it is read from the source or derived from serials.
type CandidateItem struct {
	Row             int                `json:"row"`
	Fields          map[string]string  `json:"fields"`
	PartNumber      string             `json:"part_number"`
	SerialNumber    string             `json:"serial_number,omitempty"`
	SerialNumbers   []string           `json:"serial_numbers,omitempty"`
	Quantity        *int               `json:"quantity,omitempty"`
	QuantityDerived bool               `json:"quantity_derived,omitempty"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
	Confidence      float64            `json:"confidence"`
	NeedsReview     bool               `json:"needs_review,omitempty"`
}

// RollUpConfidence sets the item-level confidence to the mean of its field
// confidences. Items without field scores keep their current value.
func (c *CandidateItem) RollUpConfidence() {
	if len(c.FieldConfidence) == 0 {
		return
	}
	var sum float64
	for _, v := range c.FieldConfidence {
		sum += v
	}
	c.Confidence = sum / float64(len(c.FieldConfidence))
}

// CapConfidence lowers every confidence on the item to at most limit.
func (c *CandidateItem) CapConfidence(limit float64) {
	for k, v := range c.FieldConfidence {
		if v > limit {
			c.FieldConfidence[k] = limit
		}
	}
	if c.Confidence > limit {
		c.Confidence = limit
	}
}

// CloneItems deep-copies a slice of candidate items.
func CloneItems(items []CandidateItem) []CandidateItem {
	out := make([]CandidateItem, len(items))
	for i, it := range items {
		cp := it
		if it.Fields != nil {
			cp.Fields = make(map[string]string, len(it.Fields))
			for k, v := range it.Fields {
				cp.Fields[k] = v
			}
		}
		if it.FieldConfidence != nil {
			cp.FieldConfidence = make(map[string]float64, len(it.FieldConfidence))
			for k, v := range it.FieldConfidence {
				cp.FieldConfidence[k] = v
			}
		}
		if it.SerialNumbers != nil {
			cp.SerialNumbers = append([]string(nil), it.SerialNumbers...)
		}
		if it.Quantity != nil {
			q := *it.Quantity
			cp.Quantity = &q
		}
		out[i] = cp
	}
	return out
}
