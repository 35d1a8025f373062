package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// mockIntake implements services.IntakeService. Methods without a func
// field panic through the nil embedded interface.
type mockIntake struct {
	services.IntakeService

	getStateFunc      func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	submitAnswerFunc  func(ctx context.Context, id uuid.UUID, answer string) (*models.SessionState, error)
	resolveColumnFunc func(ctx context.Context, id uuid.UUID, column string, d models.Disposition) (*models.SessionState, error)
	confirmFunc       func(ctx context.Context, id uuid.UUID, digest string) (*models.SessionState, error)
	cancelFunc        func(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
}

func (m *mockIntake) GetState(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	return m.getStateFunc(ctx, id)
}

func (m *mockIntake) SubmitAnswer(ctx context.Context, id uuid.UUID, answer string) (*models.SessionState, error) {
	return m.submitAnswerFunc(ctx, id, answer)
}

func (m *mockIntake) ResolveUnmappedColumn(ctx context.Context, id uuid.UUID, column string, d models.Disposition) (*models.SessionState, error) {
	return m.resolveColumnFunc(ctx, id, column, d)
}

func (m *mockIntake) Confirm(ctx context.Context, id uuid.UUID, digest string) (*models.SessionState, error) {
	return m.confirmFunc(ctx, id, digest)
}

func (m *mockIntake) Cancel(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	return m.cancelFunc(ctx, id)
}

type toolResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), req))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func newImportToolServer(intake services.IntakeService) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterImportTools(s, &ImportToolDeps{Intake: intake, Logger: zap.NewNop()})
	return s
}

func TestRegisterImportTools(t *testing.T) {
	s := newImportToolServer(&mockIntake{})

	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"get_import_state", "answer_import_question", "resolve_unmapped_column", "confirm_import", "cancel_import",
	}, names)
}

func TestGetImportState(t *testing.T) {
	id := uuid.New()
	s := newImportToolServer(&mockIntake{
		getStateFunc: func(ctx context.Context, got uuid.UUID) (*models.SessionState, error) {
			assert.Equal(t, id, got)
			return &models.SessionState{SessionID: id, Status: models.SessionStatusRoundPending, Round: 2}, nil
		},
	})

	resp := callTool(t, s, "get_import_state", map[string]any{"session_id": id.String()})
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)

	var state models.SessionState
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &state))
	assert.Equal(t, models.SessionStatusRoundPending, state.Status)
	assert.Equal(t, 2, state.Round)
}

func TestGetImportState_BadSessionID(t *testing.T) {
	s := newImportToolServer(&mockIntake{})

	resp := callTool(t, s, "get_import_state", map[string]any{"session_id": "nope"})
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)
	assert.Contains(t, resp.Result.Content[0].Text, "invalid_argument")
}

func TestAnswerImportQuestion(t *testing.T) {
	var gotAnswer string
	s := newImportToolServer(&mockIntake{
		submitAnswerFunc: func(ctx context.Context, id uuid.UUID, answer string) (*models.SessionState, error) {
			gotAnswer = answer
			return &models.SessionState{SessionID: id, Status: models.SessionStatusAwaitingApproval}, nil
		},
	})

	resp := callTool(t, s, "answer_import_question", map[string]any{
		"session_id": uuid.NewString(),
		"answer":     "Qty is units on hand",
	})
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "Qty is units on hand", gotAnswer)

	resp = callTool(t, s, "answer_import_question", map[string]any{"session_id": uuid.NewString(), "answer": "  "})
	assert.True(t, resp.Result.IsError)
}

func TestResolveUnmappedColumn_InvalidDisposition(t *testing.T) {
	s := newImportToolServer(&mockIntake{})

	resp := callTool(t, s, "resolve_unmapped_column", map[string]any{
		"session_id":  uuid.NewString(),
		"column":      "Notes",
		"disposition": "drop",
	})
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)
	assert.Contains(t, resp.Result.Content[0].Text, "valid_dispositions")
}

func TestResolveUnmappedColumn(t *testing.T) {
	var gotDisposition models.Disposition
	s := newImportToolServer(&mockIntake{
		resolveColumnFunc: func(ctx context.Context, id uuid.UUID, column string, d models.Disposition) (*models.SessionState, error) {
			assert.Equal(t, "Notes", column)
			gotDisposition = d
			return &models.SessionState{SessionID: id, Status: models.SessionStatusRoundPending}, nil
		},
	})

	resp := callTool(t, s, "resolve_unmapped_column", map[string]any{
		"session_id":  uuid.NewString(),
		"column":      "Notes",
		"disposition": "store_as_metadata",
	})
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, models.DispositionStoreAsMetadata, gotDisposition)
}

func TestConfirmImport_StaleDigestIsErrorResult(t *testing.T) {
	id := uuid.New()
	s := newImportToolServer(&mockIntake{
		confirmFunc: func(ctx context.Context, got uuid.UUID, digest string) (*models.SessionState, error) {
			return &models.SessionState{SessionID: id, Status: models.SessionStatusAwaitingApproval},
				apperrors.NewSessionError(apperrors.ErrStaleApproval, id.String(), "fp-1", nil)
		},
	})

	resp := callTool(t, s, "confirm_import", map[string]any{"session_id": id.String(), "digest": "old"})
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &body))
	assert.Equal(t, "stale_approval", body.Code)
	assert.Equal(t, "fp-1", body.Fingerprint)
	assert.NotNil(t, body.Details)
}

func TestCancelImport_InfrastructureErrorIsToolFailure(t *testing.T) {
	s := newImportToolServer(&mockIntake{
		cancelFunc: func(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
			return nil, errors.New("connection reset")
		},
	})

	resp := callTool(t, s, "cancel_import", map[string]any{"session_id": uuid.NewString()})
	// mcp-go reports handler errors either as a JSON-RPC error or an error result.
	if resp.Error != nil {
		assert.Contains(t, resp.Error.Message, "cancel_import failed")
		return
	}
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)
}

func TestErrorResultFor(t *testing.T) {
	assert.Nil(t, ErrorResultFor(errors.New("boom"), nil))
	assert.Nil(t, ErrorResultFor(nil, nil))

	res := ErrorResultFor(apperrors.ErrNotFound, nil)
	require.NotNil(t, res)
	assert.True(t, res.IsError)
}
