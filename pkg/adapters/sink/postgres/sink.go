// Package postgres is the bundled PostgreSQL commit sink.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink"
	"github.com/ekaya-inc/ekaya-intake/pkg/database"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Sink writes committed items to inventory_items, recording each batch in
// inventory_commits.
type Sink struct {
	db     *database.DB
	logger *zap.Logger
}

var _ sink.CommitSink = (*Sink)(nil)

// NewSink creates a Postgres commit sink on an existing pool.
func NewSink(db *database.DB, logger *zap.Logger) *Sink {
	return &Sink{db: db, logger: logger.Named("postgres-sink")}
}

// CommitBatch implements sink.CommitSink.
func (s *Sink) CommitBatch(ctx context.Context, sessionID uuid.UUID, records []models.InventoryRecord) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inventory_commits (session_id, item_count)
			VALUES ($1, $2)
			ON CONFLICT (session_id) DO NOTHING`,
			sessionID, len(records))
		if err != nil {
			return fmt.Errorf("record commit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			s.logger.Info("Batch already committed",
				zap.String("session_id", sessionID.String()))
			return nil
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			serials, err := json.Marshal(nonNilSlice(rec.SerialNumbers))
			if err != nil {
				return fmt.Errorf("marshal serial numbers: %w", err)
			}
			attrs, err := json.Marshal(nonNilMap(rec.Attributes))
			if err != nil {
				return fmt.Errorf("marshal attributes: %w", err)
			}
			meta, err := json.Marshal(nonNilMap(rec.Metadata))
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			batch.Queue(`
				INSERT INTO inventory_items (
					session_id, source_row, part_number, serial_number, serial_numbers, quantity, attributes, metadata
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				sessionID, rec.SourceRow, rec.PartNumber, nullable(rec.SerialNumber), serials, rec.Quantity, attrs, meta)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}

		s.logger.Info("Committed inventory batch",
			zap.String("session_id", sessionID.String()),
			zap.Int("items", len(records)))
		return nil
	})
}

// Close is a no-op; the pool is owned by the caller.
func (s *Sink) Close() error { return nil }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
