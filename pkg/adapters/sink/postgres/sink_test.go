//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

func TestSink_CommitBatchIsIdempotent(t *testing.T) {
	db := testhelpers.GetIntakeDB(t)
	db.Truncate(t, "inventory_items", "inventory_commits")
	ctx := context.Background()

	s := NewSink(db.DB, zap.NewNop())
	sessionID := uuid.New()
	records := []models.InventoryRecord{
		{SourceRow: 1, PartNumber: "A", Quantity: 2, SerialNumbers: []string{"S1", "S2"}},
		{SourceRow: 2, PartNumber: "B", Quantity: 5, Attributes: map[string]string{"location": "Bin 4"}},
	}

	require.NoError(t, s.CommitBatch(ctx, sessionID, records))
	require.NoError(t, s.CommitBatch(ctx, sessionID, records))

	var count int
	require.NoError(t, db.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_items WHERE session_id = $1`, sessionID).Scan(&count))
	assert.Equal(t, 2, count)

	var location string
	require.NoError(t, db.DB.QueryRow(ctx,
		`SELECT attributes->>'location' FROM inventory_items WHERE session_id = $1 AND part_number = 'B'`, sessionID).Scan(&location))
	assert.Equal(t, "Bin 4", location)
}
