package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/ctxutil"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
	"github.com/arrowlimo/alms/internal/storage"
)

type fakeCharters struct{}

func (fakeCharters) GetCharterDetail(_ context.Context, reserve string) (model.CharterDetail, error) {
	if reserve != "019233" {
		return model.CharterDetail{}, fmt.Errorf("charter %s: %w", reserve, storage.ErrNotFound)
	}
	return model.CharterDetail{Ledger: model.CharterLedger{Charter: model.Charter{ReserveNumber: reserve, TotalAmountDue: decimal.RequireFromString("450.00")}}}, nil
}

type fakeReporter struct{ last report.Params }

func (f *fakeReporter) Generate(_ context.Context, name string, p report.Params) (report.Report, error) {
	f.last = p
	if name != report.NameMonthly {
		return nil, fmt.Errorf("report: %q: %w", name, report.ErrUnknownReport)
	}
	return &report.Monthly{Months: []report.MonthSummary{}}, nil
}

type fakeAuditor struct{ last reconcile.Request }

func (f *fakeAuditor) Run(_ context.Context, req reconcile.Request) (reconcile.Result, error) {
	f.last = req
	return reconcile.Result{Run: model.ReconciliationRun{ID: uuid.New(), Mode: model.RunModeAudit}, Findings: []model.Finding{}}, nil
}

func newTestServer() (*Server, *fakeReporter, *fakeAuditor) {
	rep := &fakeReporter{}
	aud := &fakeAuditor{}
	return New(fakeCharters{}, rep, aud, slog.New(slog.NewTextHandler(io.Discard, nil)), "test"), rep, aud
}

func callTool(name string, args map[string]any) mcplib.CallToolRequest {
	var req mcplib.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestCharterBalanceTool(t *testing.T) {
	s, _, _ := newTestServer()
	ctx := context.Background()

	res, err := s.handleCharterBalance(ctx, callTool("alms_charter_balance", map[string]any{"reserve_number": "019233"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var detail model.CharterDetail
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &detail))
	assert.Equal(t, "019233", detail.Ledger.ReserveNumber)

	res, err = s.handleCharterBalance(ctx, callTool("alms_charter_balance", map[string]any{"reserve_number": "000001"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no charter")

	res, err = s.handleCharterBalance(ctx, callTool("alms_charter_balance", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestReportTool(t *testing.T) {
	s, rep, _ := newTestServer()
	ctx := context.Background()

	res, err := s.handleReport(ctx, callTool("alms_report", map[string]any{"name": "monthly", "from": "2024-01-01", "to": "2024-01-31"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 2024, rep.last.Range.From.Year())
	assert.Equal(t, 31, rep.last.Range.To.Day())

	res, err = s.handleReport(ctx, callTool("alms_report", map[string]any{"name": "monthly", "from": "January"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleReport(ctx, callTool("alms_report", map[string]any{"name": "ledger"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestAuditToolNeverApplies(t *testing.T) {
	s, _, aud := newTestServer()
	ctx := ctxutil.WithClaims(context.Background(), &auth.Claims{Username: "dana", Role: model.RoleBookkeeper})
	res, err := s.handleAudit(ctx, callTool("alms_audit", map[string]any{"checks": "balance,paid_amount", "reserve_number": "019233"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.False(t, aud.last.Apply)
	assert.Equal(t, []string{"balance,paid_amount"}, aud.last.Checks)
	require.NotNil(t, aud.last.Reserve)
	assert.Equal(t, "019233", *aud.last.Reserve)
	assert.Equal(t, "mcp:dana", aud.last.Actor)

	admin := ctxutil.WithClaims(context.Background(), &auth.Claims{Username: "root", Role: model.RoleAdmin})
	_, err = s.handleAudit(admin, callTool("alms_audit", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "mcp:root", aud.last.Actor)
	assert.Nil(t, aud.last.Checks)
}

func TestAuditToolRequiresBookkeeper(t *testing.T) {
	s, _, aud := newTestServer()
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no claims", context.Background()},
		{"viewer", ctxutil.WithClaims(context.Background(), &auth.Claims{Username: "vic", Role: model.RoleViewer})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aud.last = reconcile.Request{}
			res, err := s.handleAudit(tt.ctx, callTool("alms_audit", map[string]any{}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Empty(t, aud.last.Actor, "auditor must not be called")
		})
	}
}

func TestResourcesAndPrompt(t *testing.T) {
	s, _, _ := newTestServer()
	ctx := context.Background()

	contents, err := s.handleChecks(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	var checks []reconcile.CheckInfo
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcplib.TextResourceContents).Text), &checks))
	assert.Len(t, checks, len(reconcile.Catalog()))

	var req mcplib.GetPromptRequest
	req.Params.Arguments = map[string]string{"month": "2024-03"}
	prompt, err := s.handleMonthEndPrompt(ctx, req)
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	assert.Contains(t, prompt.Messages[0].Content.(mcplib.TextContent).Text, "2024-03-01")

	_, err = s.handleMonthEndPrompt(ctx, mcplib.GetPromptRequest{})
	assert.Error(t, err)
}
