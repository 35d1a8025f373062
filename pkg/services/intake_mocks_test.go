package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// mockSessionRepo is an in-memory ImportSessionRepository. Snapshots are
// stored as JSON so the service never shares memory with the store.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID][]byte
	created  []uuid.UUID

	deleteTerminalBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[uuid.UUID][]byte)}
}

func (m *mockSessionRepo) put(s *models.ImportSession) {
	cp := *s
	cp.Context = nil
	data, _ := json.Marshal(cp)
	m.sessions[s.ID] = data
}

func (m *mockSessionRepo) get(id uuid.UUID) *models.ImportSession {
	data, ok := m.sessions[id]
	if !ok {
		return nil
	}
	var s models.ImportSession
	_ = json.Unmarshal(data, &s)
	return &s
}

func (m *mockSessionRepo) Create(ctx context.Context, s *models.ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		if other := m.get(id); other.ContentFingerprint == s.ContentFingerprint && !other.Status.IsTerminal() {
			return apperrors.ErrConflict
		}
	}
	s.Version = 1
	m.put(s)
	m.created = append(m.created, s.ID)
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(id)
	if s == nil {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockSessionRepo) GetActiveByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		if s := m.get(id); s.ContentFingerprint == fingerprint && !s.Status.IsTerminal() {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSessionRepo) GetLatestFailedByFingerprint(ctx context.Context, fingerprint string) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.ImportSession
	for id := range m.sessions {
		s := m.get(id)
		if s.ContentFingerprint != fingerprint || s.Status != models.SessionStatusFailed {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, s *models.ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.get(s.ID)
	if stored == nil {
		return apperrors.ErrNotFound
	}
	if stored.Version != s.Version {
		return apperrors.ErrConflict
	}
	s.Version++
	m.put(s)
	return nil
}

func (m *mockSessionRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteTerminalBeforeFunc != nil {
		return m.deleteTerminalBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *mockSessionRepo) createdIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.created...)
}

type mockContextRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]models.ContextEntry
}

func newMockContextRepo() *mockContextRepo {
	return &mockContextRepo{entries: make(map[uuid.UUID][]models.ContextEntry)}
}

func (m *mockContextRepo) Append(ctx context.Context, sessionID uuid.UUID, entry models.ContextEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[sessionID] {
		if e.Seq == entry.Seq {
			return apperrors.ErrConflict
		}
	}
	m.entries[sessionID] = append(m.entries[sessionID], entry)
	return nil
}

func (m *mockContextRepo) List(ctx context.Context, sessionID uuid.UUID) ([]models.ContextEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.ContextEntry(nil), m.entries[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

type mockPatternRepo struct {
	mu       sync.Mutex
	patterns map[string]*models.LearnedPattern // by signature
	upserts  []string

	lookupFunc func(ctx context.Context, signatures []string) (map[string]*models.LearnedPattern, error)
	upsertFunc func(ctx context.Context, signature, targetField string) error
}

func newMockPatternRepo() *mockPatternRepo {
	return &mockPatternRepo{patterns: make(map[string]*models.LearnedPattern)}
}

func (m *mockPatternRepo) Lookup(ctx context.Context, signatures []string) (map[string]*models.LearnedPattern, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, signatures)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.LearnedPattern)
	for _, sig := range signatures {
		if p, ok := m.patterns[sig]; ok {
			cp := *p
			out[sig] = &cp
		}
	}
	return out, nil
}

func (m *mockPatternRepo) UpsertIncrement(ctx context.Context, signature, targetField string) error {
	if m.upsertFunc != nil {
		if err := m.upsertFunc(ctx, signature, targetField); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, signature+"="+targetField)
	p, ok := m.patterns[signature]
	if !ok {
		p = &models.LearnedPattern{Signature: signature, TargetField: targetField}
		m.patterns[signature] = p
	}
	p.TimesConfirmed++
	return nil
}

func (m *mockPatternRepo) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

type mockLearning struct {
	mu    sync.Mutex
	tasks []LearningTask
}

func (m *mockLearning) Dispatch(task LearningTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return true
}

func (m *mockLearning) dispatched() []LearningTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LearningTask(nil), m.tasks...)
}
