package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

type mockIntakeService struct {
	createFunc         func(ctx context.Context, up services.Upload) (*models.SessionState, error)
	getStateFunc       func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	submitAnswerFunc   func(ctx context.Context, id uuid.UUID, answer string) (*models.SessionState, error)
	resolveColumnFunc  func(ctx context.Context, id uuid.UUID, column string, d models.Disposition) (*models.SessionState, error)
	confirmMappingFunc func(ctx context.Context, id uuid.UUID, source, target string) (*models.SessionState, error)
	reanalyzeFunc      func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	confirmFunc        func(ctx context.Context, id uuid.UUID, digest string) (*models.SessionState, error)
	cancelFunc         func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	retryCommitFunc    func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
}

var _ services.IntakeService = (*mockIntakeService)(nil)

func stateFor(id uuid.UUID, status models.SessionStatus) *models.SessionState {
	return &models.SessionState{SessionID: id, Status: status, Fingerprint: "fp"}
}

func (m *mockIntakeService) Create(ctx context.Context, up services.Upload) (*models.SessionState, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, up)
	}
	return stateFor(uuid.New(), models.SessionStatusRoundPending), nil
}

func (m *mockIntakeService) GetState(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	if m.getStateFunc != nil {
		return m.getStateFunc(ctx, id)
	}
	return stateFor(id, models.SessionStatusRoundPending), nil
}

func (m *mockIntakeService) SubmitAnswer(ctx context.Context, id uuid.UUID, answer string) (*models.SessionState, error) {
	if m.submitAnswerFunc != nil {
		return m.submitAnswerFunc(ctx, id, answer)
	}
	return stateFor(id, models.SessionStatusRoundPending), nil
}

func (m *mockIntakeService) ResolveUnmappedColumn(ctx context.Context, id uuid.UUID, column string, d models.Disposition) (*models.SessionState, error) {
	if m.resolveColumnFunc != nil {
		return m.resolveColumnFunc(ctx, id, column, d)
	}
	return stateFor(id, models.SessionStatusRoundPending), nil
}

func (m *mockIntakeService) ConfirmMapping(ctx context.Context, id uuid.UUID, source, target string) (*models.SessionState, error) {
	if m.confirmMappingFunc != nil {
		return m.confirmMappingFunc(ctx, id, source, target)
	}
	return stateFor(id, models.SessionStatusRoundPending), nil
}

func (m *mockIntakeService) Reanalyze(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	if m.reanalyzeFunc != nil {
		return m.reanalyzeFunc(ctx, id)
	}
	return stateFor(id, models.SessionStatusAwaitingApproval), nil
}

func (m *mockIntakeService) Confirm(ctx context.Context, id uuid.UUID, digest string) (*models.SessionState, error) {
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, id, digest)
	}
	return stateFor(id, models.SessionStatusCommitted), nil
}

func (m *mockIntakeService) Cancel(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, id)
	}
	return stateFor(id, models.SessionStatusCancelled), nil
}

func (m *mockIntakeService) RetryCommit(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	if m.retryCommitFunc != nil {
		return m.retryCommitFunc(ctx, id)
	}
	return stateFor(id, models.SessionStatusCommitted), nil
}
