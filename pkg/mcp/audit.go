package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
)

// ToolCallLogger writes one structured log line per MCP tool call.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp-calls")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolCallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	started := a.loadAndDeleteStart(id)
	summary := summarizeResult(result)

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)),
		zap.Duration("duration", time.Since(started)),
	}
	for _, k := range []string{"status", "code"} {
		if v, ok := summary[k]; ok {
			fields = append(fields, zap.Any(k, v))
		}
	}

	if result != nil && result.IsError {
		a.logger.Info("MCP tool call rejected", fields...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}

func (a *ToolCallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	started := a.loadAndDeleteStart(id)

	a.logger.Warn("MCP tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)),
		zap.Duration("duration", time.Since(started)),
		zap.String("error", logging.SanitizeError(err)))
}

func (a *ToolCallLogger) loadAndDeleteStart(id any) time.Time {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time)
	}
	return time.Now()
}

// maxParamSize caps any string argument written to the log.
const maxParamSize = 2048

// freeTextParams are user-authored and may quote supplier data verbatim.
var freeTextParams = map[string]bool{"answer": true}

// sanitizeParams prepares tool arguments for the log: free text is
// sanitized and truncated, secret-looking keys are hashed.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSecretParam(key) {
		return hashSensitiveValue(value)
	}

	switch val := value.(type) {
	case string:
		if freeTextParams[key] {
			val = logging.SanitizeContent(val)
		}
		return logging.Truncate(val, maxParamSize)
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

func isSecretParam(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range []string{"password", "secret", "token", "api_key", "credential"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hashSensitiveValue returns a SHA-256 prefix so calls can be correlated
// without logging the value.
func hashSensitiveValue(value any) string {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// summarizeResult pulls the session status or error code out of a tool result.
func summarizeResult(result *mcplib.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}

	summary := map[string]any{"is_error": result.IsError}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			Status string `json:"status"`
			Code   string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err == nil {
			if partial.Status != "" {
				summary["status"] = partial.Status
			}
			if partial.Code != "" {
				summary["code"] = partial.Code
			}
		}
		break
	}
	return summary
}
