package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/arrowlimo/alms/internal/ctxutil"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
	"github.com/arrowlimo/alms/internal/storage"
)

// actorPrefix marks audit rows written through MCP.
const actorPrefix = "mcp"

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("alms_charter_balance",
			mcplib.WithDescription(`Look up one charter by reserve number.

Returns the charter's stored totals (total_amount_due, paid_amount, balance),
the sum and count of its charges, the sum and count of payments filed under
its reserve number, and the individual charge and payment lines.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("reserve_number",
				mcplib.Description("Charter reserve number, e.g. 019233"),
				mcplib.Required(),
			),
		),
		s.handleCharterBalance,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("alms_report",
			mcplib.WithDescription(`Run a bookkeeping report.

Reports: charter-balances (outstanding charters), receivables (aging buckets
current/31-60/61-90/90+), monthly (revenue, payments, expenses, GST paid by
month), unmatched-banking (debits with no receipt). Dates are YYYY-MM-DD.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("name",
				mcplib.Description("Report name"),
				mcplib.Required(),
				mcplib.Enum(report.Names()...),
			),
			mcplib.WithString("from", mcplib.Description("Earliest date, inclusive")),
			mcplib.WithString("to", mcplib.Description("Latest date, inclusive")),
		),
		s.handleReport,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("alms_audit",
			mcplib.WithDescription(`Run a read-only reconciliation audit and return its findings.

Each finding names the violated check, the entity (charter reserve number,
payment or receipt id), the expected and actual amounts, and whether it is
fixable. No fixes are applied; fixes are applied from the CLI or by an
admin through the HTTP API. The run is recorded. Requires the bookkeeper role.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("checks",
				mcplib.Description("Comma-separated check names; empty runs every check. Known: "+strings.Join(checkNames(), ", ")),
			),
			mcplib.WithString("reserve_number",
				mcplib.Description("Only audit this charter's ledger checks"),
			),
		),
		s.handleAudit,
	)
}

func (s *Server) handleCharterBalance(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	reserve := strings.TrimSpace(request.GetString("reserve_number", ""))
	if reserve == "" {
		return errorResult("reserve_number is required"), nil
	}
	detail, err := s.charters.GetCharterDetail(ctx, reserve)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult(fmt.Sprintf("no charter with reserve number %s", reserve)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("charter lookup failed: %v", err)), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	r, err := model.ParseDateRange(request.GetString("from", ""), request.GetString("to", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	rep, err := s.reports.Generate(ctx, request.GetString("name", ""), report.Params{Range: r})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) handleAudit(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	// Same role as POST /v1/audits.
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil || !model.RoleAtLeast(claims.Role, model.RoleBookkeeper) {
		return errorResult("alms_audit requires the bookkeeper role"), nil
	}
	req := reconcile.Request{Actor: ctxutil.Actor(ctx, actorPrefix)}
	if checks := request.GetString("checks", ""); checks != "" {
		req.Checks = []string{checks}
	}
	if reserve := strings.TrimSpace(request.GetString("reserve_number", "")); reserve != "" {
		req.Reserve = &reserve
	}
	res, err := s.auditor.Run(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("audit failed: %v", err)), nil
	}
	s.logger.Info("mcp: audit run", "run_id", res.Run.ID, "findings", len(res.Findings))
	return jsonResult(res)
}

func checkNames() []string {
	var names []string
	for _, c := range reconcile.Catalog() {
		names = append(names, c.Name)
	}
	return names
}
