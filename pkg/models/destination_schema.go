package models

import (
	"fmt"
	"strings"
)

// SchemaField describes one field of the destination inventory schema.
type SchemaField struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Required    bool     `json:"required" yaml:"required"`
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// DestinationSchema is the target-store schema the session maps into.
type DestinationSchema struct {
	Name    string        `json:"name" yaml:"name"`
	Version string        `json:"version,omitempty" yaml:"version,omitempty"`
	Fields  []SchemaField `json:"fields" yaml:"fields"`
}

// Well-known target fields the derivation rules depend on.
const (
	TargetFieldPartNumber   = "part_number"
	TargetFieldSerialNumber = "serial_number"
	TargetFieldQuantity     = "quantity"
)

// Field returns the named field, or nil.
func (s *DestinationSchema) Field(name string) *SchemaField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// HasField reports whether the schema defines the named field.
func (s *DestinationSchema) HasField(name string) bool {
	return s.Field(name) != nil
}

// RequiredFields returns the names of all required fields in schema order.
func (s *DestinationSchema) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Validate checks the schema is usable for mapping.
func (s *DestinationSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("destination schema has no name")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("destination schema %q has no fields", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("destination schema %q has a field without a name", s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("destination schema %q declares field %q twice", s.Name, f.Name)
		}
		seen[f.Name] = true
	}
	if !seen[TargetFieldPartNumber] {
		return fmt.Errorf("destination schema %q must define %q", s.Name, TargetFieldPartNumber)
	}
	return nil
}

// Describe renders the schema as plain text for the reasoning context.
func (s *DestinationSchema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Destination schema %q", s.Name)
	if s.Version != "" {
		fmt.Fprintf(&b, " (version %s)", s.Version)
	}
	b.WriteString(":\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s: %s", f.Name, f.Type)
		if f.Required {
			b.WriteString(", required")
		}
		if len(f.Constraints) > 0 {
			fmt.Fprintf(&b, ", constraints: %s", strings.Join(f.Constraints, "; "))
		}
		if f.Description != "" {
			fmt.Fprintf(&b, " (%s)", f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
