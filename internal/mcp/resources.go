package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
)

const (
	uriChecks  = "alms://checks"
	uriReports = "alms://reports"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(uriChecks, "Reconciliation Checks",
			mcplib.WithResourceDescription("Every invariant check with its severity and whether it is auto-fixable"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleChecks,
	)
	s.mcpServer.AddResource(
		mcplib.NewResource(uriReports, "Reports",
			mcplib.WithResourceDescription("Names of the reports alms_report can run"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleReports,
	)
}

func (s *Server) handleChecks(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return jsonResource(uriChecks, reconcile.Catalog())
}

func (s *Server) handleReports(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return jsonResource(uriReports, report.Names())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
