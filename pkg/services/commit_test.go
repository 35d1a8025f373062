package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func TestBuildRecords(t *testing.T) {
	qty := 3
	sess := &models.ImportSession{
		Proposals: []models.MappingProposal{
			{SourceField: "SKU", TargetField: strPtr(models.TargetFieldPartNumber)},
			{SourceField: "Qty", TargetField: strPtr(models.TargetFieldQuantity)},
			{SourceField: "Shelf", TargetField: strPtr("location")},
			{SourceField: "Notes"},
			{SourceField: "Color"},
		},
		Decisions: []models.UnmappedColumnDecision{
			{SourceField: "Notes", Disposition: models.DispositionStoreAsMetadata, Resolved: true},
			{SourceField: "Color", Disposition: models.DispositionIgnore, Resolved: true},
		},
		Items: []models.CandidateItem{
			{Row: 4, PartNumber: "P-1", Quantity: &qty,
				Fields: map[string]string{"SKU": "P-1", "Qty": "3", "Shelf": " B2 ", "Notes": "dented", "Color": "red"}},
			{Row: 5, PartNumber: "P-2", SerialNumber: "SN-9",
				Fields: map[string]string{"SKU": "P-2", "Shelf": "", "Notes": "", "Color": "blue"}},
		},
	}

	records := BuildRecords(sess)
	require.Len(t, records, 2)

	assert.Equal(t, models.InventoryRecord{
		SourceRow:  4,
		PartNumber: "P-1",
		Quantity:   3,
		Attributes: map[string]string{"location": "B2"},
		Metadata:   map[string]string{"Notes": "dented"},
	}, records[0])

	assert.Equal(t, models.InventoryRecord{
		SourceRow:    5,
		PartNumber:   "P-2",
		SerialNumber: "SN-9",
		Quantity:     1,
	}, records[1], "blank values are dropped and a bare line is one unit")
}
