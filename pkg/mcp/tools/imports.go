// Package tools provides the MCP tools that drive import sessions.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// ImportToolDeps contains dependencies for the import lifecycle tools.
type ImportToolDeps struct {
	Intake services.IntakeService
	Logger *zap.Logger
}

// RegisterImportTools registers the import lifecycle MCP tools.
func RegisterImportTools(s *server.MCPServer, deps *ImportToolDeps) {
	registerGetImportStateTool(s, deps)
	registerAnswerImportQuestionTool(s, deps)
	registerResolveUnmappedColumnTool(s, deps)
	registerConfirmImportTool(s, deps)
	registerCancelImportTool(s, deps)
}

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Import session ID (UUID)"))
}

func registerGetImportStateTool(s *server.MCPServer, deps *ImportToolDeps) {
	tool := mcp.NewTool(
		"get_import_state",
		mcp.WithDescription(
			"Get the current state of an inventory import session: status, round, pending questions "+
				"(when round_pending), unresolved columns, mapping proposals with confidence, and the "+
				"approval summary with its digest (when awaiting_approval).",
		),
		sessionIDParam(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireSessionID(req)
		if bad != nil {
			return bad, nil
		}
		state, err := deps.Intake.GetState(ctx, id)
		return stateResult(deps, "get_import_state", state, err)
	})
}

func registerAnswerImportQuestionTool(s *server.MCPServer, deps *ImportToolDeps) {
	tool := mcp.NewTool(
		"answer_import_question",
		mcp.WithDescription(
			"Answer the pending questions of an import session in free text. The answer is added to the "+
				"session history and a new analysis round runs before this call returns. "+
				"Example: answer_import_question(session_id='...', answer='Bin is the warehouse location').",
		),
		sessionIDParam(),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Free-text answer to the pending questions")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireSessionID(req)
		if bad != nil {
			return bad, nil
		}
		answer, err := req.RequireString("answer")
		if err != nil || trimString(answer) == "" {
			return NewErrorResult("invalid_argument", "answer is required"), nil
		}
		state, err := deps.Intake.SubmitAnswer(ctx, id, answer)
		return stateResult(deps, "answer_import_question", state, err)
	})
}

func registerResolveUnmappedColumnTool(s *server.MCPServer, deps *ImportToolDeps) {
	tool := mcp.NewTool(
		"resolve_unmapped_column",
		mcp.WithDescription(
			"Record what to do with a source column that has no destination field. A column is never "+
				"silently dropped: every unmapped column needs one of 'ignore', 'store_as_metadata' or "+
				"'request_schema_update' before the import can be approved.",
		),
		sessionIDParam(),
		mcp.WithString("column", mcp.Required(), mcp.Description("Source column name exactly as shown in unresolved_columns")),
		mcp.WithString("disposition", mcp.Required(),
			mcp.Enum(string(models.DispositionIgnore), string(models.DispositionStoreAsMetadata), string(models.DispositionRequestSchemaUpdate)),
			mcp.Description("ignore, store_as_metadata or request_schema_update")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireSessionID(req)
		if bad != nil {
			return bad, nil
		}
		column, err := req.RequireString("column")
		if err != nil || trimString(column) == "" {
			return NewErrorResult("invalid_argument", "column is required"), nil
		}
		disposition := models.Disposition(trimString(getOptionalString(req, "disposition")))
		if !models.IsValidDisposition(disposition) {
			return NewErrorResultWithDetails("invalid_argument",
				fmt.Sprintf("disposition %q is not valid", disposition),
				map[string]any{"valid_dispositions": models.ValidDispositions}), nil
		}
		state, err := deps.Intake.ResolveUnmappedColumn(ctx, id, column, disposition)
		return stateResult(deps, "resolve_unmapped_column", state, err)
	})
}

func registerConfirmImportTool(s *server.MCPServer, deps *ImportToolDeps) {
	tool := mcp.NewTool(
		"confirm_import",
		mcp.WithDescription(
			"Approve and commit an import session that is awaiting_approval. Pass the digest from the "+
				"approval summary you showed the user; a stale digest is rejected so the commit always "+
				"matches what was approved.",
		),
		sessionIDParam(),
		mcp.WithString("digest", mcp.Required(), mcp.Description("summary.digest from get_import_state")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireSessionID(req)
		if bad != nil {
			return bad, nil
		}
		digest, err := req.RequireString("digest")
		if err != nil || trimString(digest) == "" {
			return NewErrorResult("invalid_argument", "digest is required"), nil
		}
		state, err := deps.Intake.Confirm(ctx, id, trimString(digest))
		return stateResult(deps, "confirm_import", state, err)
	})
}

func registerCancelImportTool(s *server.MCPServer, deps *ImportToolDeps) {
	tool := mcp.NewTool(
		"cancel_import",
		mcp.WithDescription("Cancel an import session, stopping any analysis in progress. Nothing is committed."),
		sessionIDParam(),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireSessionID(req)
		if bad != nil {
			return bad, nil
		}
		state, err := deps.Intake.Cancel(ctx, id)
		return stateResult(deps, "cancel_import", state, err)
	})
}

// stateResult renders a lifecycle outcome. Domain errors become error
// results carrying the session state; anything else is a tool failure.
func stateResult(deps *ImportToolDeps, tool string, state *models.SessionState, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var details any
		if state != nil {
			details = state
		}
		if res := ErrorResultFor(err, details); res != nil {
			return res, nil
		}
		deps.Logger.Error("Import tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, fmt.Errorf("%s failed: %w", tool, err)
	}
	return jsonResult(state)
}
