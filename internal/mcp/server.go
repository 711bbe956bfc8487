package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"codestory/internal/pipeline"
)

const (
	// ServerName is the MCP server name
	ServerName = "codestory"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	orch   *pipeline.Orchestrator
	logger *zap.Logger
}

// NewServer creates a new MCP server instance over an already-running
// pipeline. The server never mutates task state.
func NewServer(orch *pipeline.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		orch:   orch,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(taskStatusTool(), s.handleTaskStatus)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getArtifactTool(), s.handleGetArtifact)
	s.mcp.AddTool(listHistoryTool(), s.handleListHistory)
}
