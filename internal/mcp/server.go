package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"geoetl/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for geoetl.
// It exposes tools, resources, and prompts so AI agents can inspect
// sources and manage sync jobs.
type Server struct {
	mcp      *server.MCPServer
	approval Approver
	etl      *service.ETLService
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	ETL      *service.ETLService
	Approver Approver // nil denies destructive tools
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	approval := deps.Approver
	if approval == nil {
		approval = DenyAll{}
	}
	s := &Server{
		approval: approval,
		etl:      deps.ETL,
	}

	s.mcp = server.NewMCPServer(
		"geoetl-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerETLTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
