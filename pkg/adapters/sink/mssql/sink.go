// Package mssql is a commit sink for SQL Server and Azure SQL targets. The
// target tables (inventory_commits, inventory_items) are owned by the target
// database and must exist.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Sink writes committed items to SQL Server.
type Sink struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ sink.CommitSink = (*Sink)(nil)

// NewSink opens a connection pool and verifies it.
func NewSink(ctx context.Context, cfg *Config, logger *zap.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mssql sink config: %w", err)
	}
	driver, dsn := cfg.DriverAndDSN()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return newSinkWithDB(db, logger), nil
}

func newSinkWithDB(db *sql.DB, logger *zap.Logger) *Sink {
	return &Sink{db: db, logger: logger.Named("mssql-sink")}
}

// CommitBatch implements sink.CommitSink.
func (s *Sink) CommitBatch(ctx context.Context, sessionID uuid.UUID, records []models.InventoryRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM inventory_commits WITH (UPDLOCK, HOLDLOCK) WHERE session_id = @p1`,
		sessionID.String()).Scan(&existing); err != nil {
		return fmt.Errorf("check commit record: %w", err)
	}
	if existing > 0 {
		s.logger.Info("Batch already committed", zap.String("session_id", sessionID.String()))
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_commits (session_id, item_count, committed_at) VALUES (@p1, @p2, SYSUTCDATETIME())`,
		sessionID.String(), len(records)); err != nil {
		return fmt.Errorf("record commit: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inventory_items (
			session_id, source_row, part_number, serial_number, serial_numbers, quantity, attributes, metadata
		) VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var serials, attrs, meta []byte
		if serials, err = json.Marshal(rec.SerialNumbers); err != nil {
			return fmt.Errorf("marshal serial numbers: %w", err)
		}
		if attrs, err = json.Marshal(rec.Attributes); err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		var serial any
		if rec.SerialNumber != "" {
			serial = rec.SerialNumber
		}
		if _, err = stmt.ExecContext(ctx,
			sessionID.String(), rec.SourceRow, rec.PartNumber, serial,
			string(serials), rec.Quantity, string(attrs), string(meta)); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.logger.Info("Committed inventory batch",
		zap.String("session_id", sessionID.String()),
		zap.Int("items", len(records)))
	return nil
}

// Close closes the connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
