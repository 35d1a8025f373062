package models

// InventoryRecord is one row written to the target inventory store.
// Attributes are keyed by target field; Metadata holds source columns whose
// disposition is store_as_metadata, keyed by source field.
type InventoryRecord struct {
	SourceRow     int               `json:"source_row"`
	PartNumber    string            `json:"part_number"`
	SerialNumber  string            `json:"serial_number,omitempty"`
	SerialNumbers []string          `json:"serial_numbers,omitempty"`
	Quantity      int               `json:"quantity"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
