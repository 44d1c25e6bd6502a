// Package mcp implements the Model Context Protocol server for turneval.
//
// It exposes evaluation and cached reports to MCP-compatible agents through
// tools, resources and prompts backed by the same evaluation service as the
// HTTP API.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/rolecraft/turneval/internal/service/evaluations"
)

// Server wraps the MCP server with the evaluation service.
type Server struct {
	mcpServer *mcpserver.MCPServer
	evalSvc   *evaluations.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(evalSvc *evaluations.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		evalSvc: evalSvc,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"turneval",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const instructions = `turneval scores one character-agent reply at a time.

Call turneval_evaluate with the evaluation context (message, agent, flow,
conversation_history, prompt_messages) right after generating a reply.
Read issues and recommendations; fix critical and high issues first.
Use turneval_report or the turneval://reports/{message_id} resource to
re-read a report later, and the turneval_fix_issues prompt to plan fixes.`

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
