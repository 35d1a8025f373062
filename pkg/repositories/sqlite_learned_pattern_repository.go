package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

const sqliteLearnedPatternSchema = `
CREATE TABLE IF NOT EXISTS learned_patterns (
	signature       TEXT NOT NULL,
	target_field    TEXT NOT NULL,
	times_confirmed INTEGER NOT NULL DEFAULT 1,
	last_used_at    INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (signature, target_field)
)`

// SQLiteLearnedPatternRepository is a file-backed LearnedPatternRepository for
// single-node deployments that keep learning local.
type SQLiteLearnedPatternRepository struct {
	db *sql.DB
}

var _ LearnedPatternRepository = (*SQLiteLearnedPatternRepository)(nil)

// NewSQLiteLearnedPatternRepository opens (or creates) the database at path.
func NewSQLiteLearnedPatternRepository(path string) (*SQLiteLearnedPatternRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteLearnedPatternSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating learned_patterns table: %w", err)
	}
	return &SQLiteLearnedPatternRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteLearnedPatternRepository) Close() error {
	return r.db.Close()
}

// Lookup implements LearnedPatternRepository.
func (r *SQLiteLearnedPatternRepository) Lookup(ctx context.Context, signatures []string) (map[string]*models.LearnedPattern, error) {
	out := make(map[string]*models.LearnedPattern)
	if len(signatures) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(signatures)), ",")
	args := make([]any, len(signatures))
	for i, s := range signatures {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT signature, target_field, times_confirmed, last_used_at, created_at
		FROM learned_patterns
		WHERE signature IN (`+placeholders+`)
		ORDER BY signature, times_confirmed DESC, last_used_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying learned patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.LearnedPattern
		var lastUsed, created int64
		if err := rows.Scan(&p.Signature, &p.TargetField, &p.TimesConfirmed, &lastUsed, &created); err != nil {
			return nil, fmt.Errorf("scanning learned pattern: %w", err)
		}
		if _, seen := out[p.Signature]; seen {
			continue
		}
		p.LastUsedAt = time.UnixMilli(lastUsed).UTC()
		p.CreatedAt = time.UnixMilli(created).UTC()
		out[p.Signature] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learned patterns: %w", err)
	}
	return out, nil
}

// UpsertIncrement implements LearnedPatternRepository.
func (r *SQLiteLearnedPatternRepository) UpsertIncrement(ctx context.Context, signature, targetField string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO learned_patterns (signature, target_field, times_confirmed, last_used_at, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (signature, target_field)
		DO UPDATE SET times_confirmed = times_confirmed + 1, last_used_at = excluded.last_used_at`,
		signature, targetField, now, now)
	if err != nil {
		return fmt.Errorf("upserting learned pattern: %w", err)
	}
	return nil
}
