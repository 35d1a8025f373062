// Package mcp exposes import sessions to agents over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const instructions = `Inventory import sessions are created by uploading a file over HTTP.
Use get_import_state to read a session, answer_import_question during clarification rounds,
resolve_unmapped_column for columns with no target field, and confirm_import with the
summary digest once the session is awaiting approval.`

// Server owns the MCPServer that serves the import tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer builds the MCP server. Every tool call passes through a
// ToolCallLogger and panics in handlers are recovered into error results.
func NewServer(name, version string, logger *zap.Logger) *Server {
	calls := NewToolCallLogger(logger)
	return &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithInstructions(instructions),
			server.WithHooks(calls.Hooks()),
			server.WithRecovery(),
		),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer returns a stateless HTTP transport. Sessions live in
// the intake store, so the transport keeps none; the caller mounts it at /mcp.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	s.logger.Debug("Creating streamable HTTP transport")
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}
