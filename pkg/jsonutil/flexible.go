package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleString is a string field that also accepts JSON numbers and booleans.
// Model replies often emit part numbers like 1042 without quotes.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexibleString) UnmarshalJSON(raw []byte) error {
	*s = FlexibleString(FlexibleStringValue(raw))
	return nil
}

// FlexibleIntValue converts a json.RawMessage to an int. Numeric strings such
// as "12" or " 3 " are accepted. Returns nil for null, empty, or non-integral values.
func FlexibleIntValue(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err != nil {
		var strVal string
		if err := json.Unmarshal(raw, &strVal); err != nil {
			return nil
		}
		numVal, err = strconv.ParseFloat(strings.TrimSpace(strVal), 64)
		if err != nil {
			return nil
		}
	}
	if numVal != float64(int64(numVal)) {
		return nil
	}
	n := int(numVal)
	return &n
}

// FlexibleInt is an optional integer field that also accepts numeric strings.
type FlexibleInt struct {
	Value *int
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *FlexibleInt) UnmarshalJSON(raw []byte) error {
	i.Value = FlexibleIntValue(raw)
	return nil
}
