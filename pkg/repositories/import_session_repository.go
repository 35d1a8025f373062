package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/database"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

const activeFingerprintIndex = "intake_sessions_active_fingerprint"

// ImportSessionRepository persists session snapshots. The context log lives
// in SessionContextRepository and is not part of the snapshot.
type ImportSessionRepository interface {
	// Create inserts a new session. Returns apperrors.ErrConflict when a
	// non-terminal session already holds the same fingerprint.
	Create(ctx context.Context, session *models.ImportSession) error

	// GetByID retrieves a session without its context log.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportSession, error)

	// GetActiveByFingerprint returns the non-terminal session with this
	// fingerprint, or nil if there is none.
	GetActiveByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error)

	// GetLatestFailedByFingerprint returns the most recent failed session with
	// this fingerprint, or nil.
	GetLatestFailedByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error)

	// Update writes the snapshot if the stored version still equals
	// session.Version, then increments session.Version. A lost race returns
	// apperrors.ErrConflict.
	Update(ctx context.Context, session *models.ImportSession) error

	// DeleteTerminalBefore removes terminal sessions last updated before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type importSessionRepository struct {
	db database.Querier
}

// NewImportSessionRepository creates a new ImportSessionRepository.
func NewImportSessionRepository(db database.Querier) ImportSessionRepository {
	return &importSessionRepository{db: db}
}

var _ ImportSessionRepository = (*importSessionRepository)(nil)

func (r *importSessionRepository) Create(ctx context.Context, session *models.ImportSession) error {
	now := time.Now().UTC()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Version = 1

	snapshot, err := marshalSnapshot(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO intake_sessions (
			id, content_fingerprint, status, source_type, retry_of, snapshot, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		session.ID, session.ContentFingerprint, string(session.Status), nullableString(string(session.SourceType)),
		session.RetryOf, snapshot, session.Version, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, activeFingerprintIndex) {
			return fmt.Errorf("active session for fingerprint: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("insert import session: %w", err)
	}
	return nil
}

func (r *importSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportSession, error) {
	query := `SELECT snapshot, version, created_at, updated_at FROM intake_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("import session %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get import session: %w", err)
	}
	return s, nil
}

func (r *importSessionRepository) GetActiveByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error) {
	query := `
		SELECT snapshot, version, created_at, updated_at
		FROM intake_sessions
		WHERE content_fingerprint = $1
		AND status NOT IN ('committed', 'failed', 'cancelled')`
	return r.findOne(ctx, query, fingerprint)
}

func (r *importSessionRepository) GetLatestFailedByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error) {
	query := `
		SELECT snapshot, version, created_at, updated_at
		FROM intake_sessions
		WHERE content_fingerprint = $1 AND status = 'failed'
		ORDER BY created_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, fingerprint)
}

func (r *importSessionRepository) findOne(ctx context.Context, query string, args ...any) (*models.ImportSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find import session: %w", err)
	}
	return s, nil
}

func (r *importSessionRepository) Update(ctx context.Context, session *models.ImportSession) error {
	session.UpdatedAt = time.Now().UTC()
	next := session.Version + 1

	prev := session.Version
	session.Version = next
	snapshot, err := marshalSnapshot(session)
	session.Version = prev
	if err != nil {
		return err
	}

	query := `
		UPDATE intake_sessions
		SET status = $2, source_type = $3, snapshot = $4, version = $5, updated_at = $6
		WHERE id = $1 AND version = $7`

	tag, err := r.db.Exec(ctx, query,
		session.ID, string(session.Status), nullableString(string(session.SourceType)),
		snapshot, next, session.UpdatedAt, session.Version,
	)
	if err != nil {
		return fmt.Errorf("update import session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import session %s changed concurrently: %w", session.ID, apperrors.ErrConflict)
	}
	session.Version = next
	return nil
}

func (r *importSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM intake_sessions
		WHERE status IN ('committed', 'failed', 'cancelled')
		AND updated_at < $1`

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalSnapshot(session *models.ImportSession) ([]byte, error) {
	cp := *session
	cp.Context = nil
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal session snapshot: %w", err)
	}
	return data, nil
}

func scanSession(row pgx.Row) (*models.ImportSession, error) {
	var (
		snapshot  []byte
		version   int
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&snapshot, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var s models.ImportSession
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	s.Version = version
	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt
	return &s, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
