package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

type healthResult struct {
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Schema       string   `json:"schema,omitempty"`
	SchemaFields []string `json:"schema_fields,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// RegisterHealthTool adds a health tool reporting the server version and the
// destination schema imports are reconciled against.
func RegisterHealthTool(s *server.MCPServer, version string, schemas services.SchemaProvider) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health, version and the destination schema fields"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: version}
		if schemas != nil {
			schema, err := schemas.DescribeSchema(ctx)
			if err != nil {
				res.Status = "degraded"
				res.Error = err.Error()
			} else {
				res.Schema = schema.Name
				for _, f := range schema.Fields {
					res.SchemaFields = append(res.SchemaFields, f.Name)
				}
			}
		}
		return jsonResult(res)
	})
}
