package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-intake/pkg/database"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// LearnedPatternRepository stores human-confirmed mappings across sessions.
type LearnedPatternRepository interface {
	// Lookup returns, per signature, the pattern confirmed most often.
	// Signatures without a pattern are absent from the map.
	Lookup(ctx context.Context, signatures []string) (map[string]*models.LearnedPattern, error)

	// UpsertIncrement records one more confirmation of signature → targetField.
	// Concurrent calls never lose an increment.
	UpsertIncrement(ctx context.Context, signature, targetField string) error
}

type learnedPatternRepository struct {
	db database.Querier
}

// NewLearnedPatternRepository creates a Postgres-backed LearnedPatternRepository.
func NewLearnedPatternRepository(db database.Querier) LearnedPatternRepository {
	return &learnedPatternRepository{db: db}
}

var _ LearnedPatternRepository = (*learnedPatternRepository)(nil)

func (r *learnedPatternRepository) Lookup(ctx context.Context, signatures []string) (map[string]*models.LearnedPattern, error) {
	out := make(map[string]*models.LearnedPattern)
	if len(signatures) == 0 {
		return out, nil
	}

	query := `
		SELECT DISTINCT ON (signature) signature, target_field, times_confirmed, last_used_at, created_at
		FROM intake_learned_patterns
		WHERE signature = ANY($1)
		ORDER BY signature, times_confirmed DESC, last_used_at DESC`

	rows, err := r.db.Query(ctx, query, signatures)
	if err != nil {
		return nil, fmt.Errorf("lookup learned patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.LearnedPattern
		if err := rows.Scan(&p.Signature, &p.TargetField, &p.TimesConfirmed, &p.LastUsedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan learned pattern: %w", err)
		}
		out[p.Signature] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learned patterns: %w", err)
	}
	return out, nil
}

func (r *learnedPatternRepository) UpsertIncrement(ctx context.Context, signature, targetField string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO intake_learned_patterns (signature, target_field, times_confirmed, last_used_at, created_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (signature, target_field)
		DO UPDATE SET times_confirmed = intake_learned_patterns.times_confirmed + 1,
		              last_used_at = EXCLUDED.last_used_at`

	if _, err := r.db.Exec(ctx, query, signature, targetField, now); err != nil {
		return fmt.Errorf("upsert learned pattern: %w", err)
	}
	return nil
}
