// Package sink defines the target inventory store that committed items are
// written to.
package sink

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// CommitSink writes one session's records to the target store.
//
// CommitBatch writes every record in a single transaction: either all rows
// are stored or none are. It is idempotent per session id, so a retry after
// an ambiguous failure never writes the batch twice.
type CommitSink interface {
	CommitBatch(ctx context.Context, sessionID uuid.UUID, records []models.InventoryRecord) error
	Close() error
}

// Func adapts a function to CommitSink, mostly for tests.
type Func func(ctx context.Context, sessionID uuid.UUID, records []models.InventoryRecord) error

// CommitBatch implements CommitSink.
func (f Func) CommitBatch(ctx context.Context, sessionID uuid.UUID, records []models.InventoryRecord) error {
	return f(ctx, sessionID, records)
}

// Close implements CommitSink.
func (f Func) Close() error { return nil }
