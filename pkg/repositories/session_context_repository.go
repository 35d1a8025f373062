package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/database"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// SessionContextRepository stores the append-only context log of a session.
// Entries are never updated or deleted individually.
type SessionContextRepository interface {
	// Append persists one entry. A duplicate seq returns apperrors.ErrConflict.
	Append(ctx context.Context, sessionID uuid.UUID, entry models.ContextEntry) error

	// List returns every entry of a session in seq order.
	List(ctx context.Context, sessionID uuid.UUID) ([]models.ContextEntry, error)
}

type sessionContextRepository struct {
	db database.Querier
}

// NewSessionContextRepository creates a new SessionContextRepository.
func NewSessionContextRepository(db database.Querier) SessionContextRepository {
	return &sessionContextRepository{db: db}
}

var _ SessionContextRepository = (*sessionContextRepository)(nil)

func (r *sessionContextRepository) Append(ctx context.Context, sessionID uuid.UUID, entry models.ContextEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO intake_session_context (session_id, seq, round, kind, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		sessionID, entry.Seq, entry.Round, string(entry.Kind), entry.Content, entry.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return fmt.Errorf("context entry %d for session %s: %w", entry.Seq, sessionID, apperrors.ErrConflict)
		}
		return fmt.Errorf("append context entry: %w", err)
	}
	return nil
}

func (r *sessionContextRepository) List(ctx context.Context, sessionID uuid.UUID) ([]models.ContextEntry, error) {
	query := `
		SELECT seq, round, kind, content, created_at
		FROM intake_session_context
		WHERE session_id = $1
		ORDER BY seq`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list context entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ContextEntry
	for rows.Next() {
		var e models.ContextEntry
		var kind string
		if err := rows.Scan(&e.Seq, &e.Round, &kind, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan context entry: %w", err)
		}
		e.Kind = models.ContextEntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context entries: %w", err)
	}
	return entries, nil
}
