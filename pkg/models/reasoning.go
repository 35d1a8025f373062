package models

import (
	"encoding/json"

	"github.com/ekaya-inc/ekaya-intake/pkg/jsonutil"
)

// ReasoningMapping is one mapping in a reasoning reply.
type ReasoningMapping struct {
	SourceField    string  `json:"source_field"`
	TargetField    *string `json:"target_field"`
	Confidence     float64 `json:"confidence"`
	FromUserAnswer bool    `json:"from_user_answer"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// ReasoningItem is one item in a reasoning reply, keyed by target field names.
type ReasoningItem struct {
	Row          int               `json:"row"`
	PartNumber   string            `json:"part_number"`
	SerialNumber string            `json:"serial_number,omitempty"`
	Quantity     *int              `json:"quantity,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Confidence   float64           `json:"confidence"`
}

// UnmarshalJSON accepts bare numbers for part and serial numbers and numeric
// strings for quantity, which reasoning backends emit interchangeably.
func (it *ReasoningItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Row          jsonutil.FlexibleInt               `json:"row"`
		PartNumber   jsonutil.FlexibleString            `json:"part_number"`
		SerialNumber jsonutil.FlexibleString            `json:"serial_number"`
		Quantity     jsonutil.FlexibleInt               `json:"quantity"`
		Fields       map[string]jsonutil.FlexibleString `json:"fields"`
		Confidence   float64                            `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*it = ReasoningItem{
		PartNumber:   string(raw.PartNumber),
		SerialNumber: string(raw.SerialNumber),
		Quantity:     raw.Quantity.Value,
		Confidence:   raw.Confidence,
	}
	if raw.Row.Value != nil {
		it.Row = *raw.Row.Value
	}
	if raw.Fields != nil {
		it.Fields = make(map[string]string, len(raw.Fields))
		for k, v := range raw.Fields {
			it.Fields[k] = string(v)
		}
	}
	return nil
}

// ReasoningReply is the interpreted answer of the reasoning backend for one round.
// It carries questions, a mapping proposal, or both.
type ReasoningReply struct {
	Questions []string           `json:"questions,omitempty"`
	Mappings  []ReasoningMapping `json:"mappings,omitempty"`
	Items     []ReasoningItem    `json:"items,omitempty"`
}

// HasQuestions returns true if the backend asked anything.
func (r *ReasoningReply) HasQuestions() bool {
	return len(r.Questions) > 0
}
