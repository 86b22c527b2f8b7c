// Package mcp implements the Model Context Protocol server for ALMS.
//
// Tools are read-mostly: charter balances, reports and audit-mode
// reconciliation runs. Nothing reachable over MCP applies fixes.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
)

// CharterStore loads a charter with its charges and payments.
type CharterStore interface {
	GetCharterDetail(ctx context.Context, reserveNumber string) (model.CharterDetail, error)
}

// Reporter builds named reports.
type Reporter interface {
	Generate(ctx context.Context, name string, p report.Params) (report.Report, error)
}

// Auditor runs reconciliation passes.
type Auditor interface {
	Run(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
}

// Server wraps the MCP server with the ALMS services.
type Server struct {
	mcpServer *mcpserver.MCPServer
	charters  CharterStore
	reports   Reporter
	auditor   Auditor
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(charters CharterStore, reports Reporter, auditor Auditor, logger *slog.Logger, version string) *Server {
	s := &Server{
		charters: charters,
		reports:  reports,
		auditor:  auditor,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"alms",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
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

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
