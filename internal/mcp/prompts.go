package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// month-end walks through the checks a bookkeeper runs before closing a month.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("month-end",
			mcplib.WithPromptDescription("Review the books before closing a month"),
			mcplib.WithArgument("month",
				mcplib.ArgumentDescription("Month to close, as YYYY-MM"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleMonthEndPrompt,
	)
}

func (s *Server) handleMonthEndPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	month := request.Params.Arguments["month"]
	if month == "" {
		return nil, fmt.Errorf("month argument is required")
	}
	text := fmt.Sprintf(`Review the limousine books for %[1]s before they are closed.

1. Call alms_audit with no checks to run every reconciliation check. Summarize
   the findings by check and severity. Error findings block the close.
2. Call alms_report with name="monthly", from="%[1]s-01" and to the last day of
   %[1]s. Report revenue, payments, expenses and GST paid.
3. Call alms_report with name="unmatched-banking" for the same range and list
   debits that still need a receipt.
4. Call alms_report with name="receivables" and call out anything in the 90+ bucket.

Do not suggest changing amounts by hand. Fixable findings are applied with
"alms reconcile --apply" by an admin.`, month)

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Month-end review for %s", month),
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: text},
			},
		},
	}, nil
}
