package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func TestCheckSerialUniqueness(t *testing.T) {
	items := []models.CandidateItem{
		{Row: 1, PartNumber: "A", SerialNumbers: []string{"S1", "S2"}},
		{Row: 2, PartNumber: "B", SerialNumber: " S1 "},
		{Row: 3, PartNumber: "A", SerialNumber: "S2"},
		{Row: 4, PartNumber: "", SerialNumber: "S2"},
	}

	flags := CheckSerialUniqueness(items)
	require.Len(t, flags, 1)
	assert.Equal(t, models.FlagKindSerialConflict, flags[0].Kind)
	assert.Equal(t, "S1", flags[0].SerialNumber)
	assert.Equal(t, []int{1, 2}, flags[0].Rows)
	assert.Contains(t, flags[0].Detail, "A, B")
	assert.True(t, models.HasGatingFlags(flags))
}

func TestCheckSerialUniqueness_SamePartRepeats(t *testing.T) {
	flags := CheckSerialUniqueness([]models.CandidateItem{
		{Row: 1, PartNumber: "A", SerialNumber: "S9"},
		{Row: 2, PartNumber: "A", SerialNumber: "S9"},
	})
	assert.Empty(t, flags)
}
