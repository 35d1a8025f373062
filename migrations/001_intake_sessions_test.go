//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

// Test_001_IntakeSessions verifies the session tables and the partial unique
// fingerprint index.
func Test_001_IntakeSessions(t *testing.T) {
	intakeDB := testhelpers.GetIntakeDB(t)
	ctx := context.Background()

	columns := map[string]string{
		"id":                  "uuid",
		"content_fingerprint": "text",
		"status":              "text",
		"snapshot":            "jsonb",
		"version":             "integer",
		"created_at":          "timestamp with time zone",
	}
	for colName, expectedType := range columns {
		var dataType string
		err := intakeDB.DB.QueryRow(ctx, `
			SELECT data_type
			FROM information_schema.columns
			WHERE table_name = 'intake_sessions'
			AND column_name = $1
		`, colName).Scan(&dataType)
		require.NoError(t, err, "Column %s should exist", colName)
		assert.Equal(t, expectedType, dataType, "Column %s should have type %s", colName, expectedType)
	}

	var indexDef string
	err := intakeDB.DB.QueryRow(ctx, `
		SELECT indexdef
		FROM pg_indexes
		WHERE tablename = 'intake_sessions'
		AND indexname = 'intake_sessions_active_fingerprint'
	`).Scan(&indexDef)
	require.NoError(t, err)
	assert.Contains(t, indexDef, "UNIQUE")
	assert.Contains(t, indexDef, "WHERE")
}
