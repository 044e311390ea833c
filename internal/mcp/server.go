package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/pipeline"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server exposing the knowledge base, the learning
// store, and pipeline status to external agent tooling.
type Server struct {
	retriever knowledge.Retriever
	learnings *learning.Store
	pipeline  *pipeline.Store
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(retriever knowledge.Retriever, learnings *learning.Store, pipelineStore *pipeline.Store) *Server {
	s := &Server{
		retriever: retriever,
		learnings: learnings,
		pipeline:  pipelineStore,
	}

	s.mcp = server.NewMCPServer(
		"marko",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchKnowledgeTool, s.handleSearchKnowledge)
	s.mcp.AddTool(listLearningsTool, s.handleListLearnings)
	s.mcp.AddTool(pipelineStatusTool, s.handlePipelineStatus)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
