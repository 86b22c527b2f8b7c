package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/ratelimit"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
	"github.com/arrowlimo/alms/internal/storage"
)

type fakeStore struct {
	pingErr  error
	charters map[string]model.CharterDetail
	runs     map[uuid.UUID]model.ReconciliationRun
	findings map[uuid.UUID][]model.Finding
	debits   []model.BankingTransaction
	gotRange model.DateRange
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) GetCharterDetail(_ context.Context, reserve string) (model.CharterDetail, error) {
	d, ok := s.charters[reserve]
	if !ok {
		return model.CharterDetail{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *fakeStore) GetRun(_ context.Context, id uuid.UUID) (model.ReconciliationRun, error) {
	r, ok := s.runs[id]
	if !ok {
		return model.ReconciliationRun{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) ListFindings(_ context.Context, runID uuid.UUID) ([]model.Finding, error) {
	return s.findings[runID], nil
}

func (s *fakeStore) UnmatchedDebits(_ context.Context, r model.DateRange) ([]model.BankingTransaction, error) {
	s.gotRange = r
	return s.debits, nil
}

type fakeAuthenticator struct {
	jwt   *auth.JWTManager
	users map[string]model.User
}

func (a *fakeAuthenticator) Authenticate(_ context.Context, username, password string) (auth.Token, error) {
	u, ok := a.users[username]
	if !ok || password != "correct-horse" {
		return auth.Token{}, auth.ErrInvalidCredentials
	}
	tok, exp, err := a.jwt.IssueToken(u)
	if err != nil {
		return auth.Token{}, err
	}
	return auth.Token{Token: tok, ExpiresAt: exp, Username: u.Username, Role: u.Role}, nil
}

type fakeAuditor struct {
	got reconcile.Request
}

func (a *fakeAuditor) Run(_ context.Context, req reconcile.Request) (reconcile.Result, error) {
	a.got = req
	if _, err := reconcile.ParseChecks(req.Checks); err != nil {
		return reconcile.Result{}, err
	}
	mode := model.RunModeAudit
	if req.Apply {
		mode = model.RunModeApply
	}
	return reconcile.Result{Run: model.ReconciliationRun{ID: uuid.New(), Mode: mode, StartedBy: req.Actor}}, nil
}

type fakeReporter struct {
	got report.Params
}

func (f *fakeReporter) Generate(_ context.Context, name string, p report.Params) (report.Report, error) {
	f.got = p
	if name != report.NameCharterBalances {
		return nil, fmt.Errorf("%w: %s", report.ErrUnknownReport, name)
	}
	return &report.CharterBalances{
		Charters: []model.CharterBalance{{ReserveNumber: "019001", TotalAmountDue: decimal.NewFromInt(500), PaidAmount: decimal.NewFromInt(200), Balance: decimal.NewFromInt(300)}},
		Total:    decimal.NewFromInt(300),
	}, nil
}

type testEnv struct {
	srv      *Server
	jwt      *auth.JWTManager
	store    *fakeStore
	auditor  *fakeAuditor
	reporter *fakeReporter
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	runID := uuid.MustParse("8a6f1f8e-1f5e-4c57-9a3e-0c1b2a3d4e5f")
	env := &testEnv{
		jwt: jwtMgr,
		store: &fakeStore{
			charters: map[string]model.CharterDetail{
				"019001": {Ledger: model.CharterLedger{Charter: model.Charter{ReserveNumber: "019001"}}},
			},
			runs:     map[uuid.UUID]model.ReconciliationRun{runID: {ID: runID, Mode: model.RunModeAudit}},
			findings: map[uuid.UUID][]model.Finding{runID: {{RunID: runID, Check: "balance"}}},
		},
		auditor:  &fakeAuditor{},
		reporter: &fakeReporter{},
	}
	env.srv = New(ServerConfig{
		Store:   env.store,
		Users:   &fakeAuthenticator{jwt: jwtMgr, users: map[string]model.User{"admin": {ID: 1, Username: "admin", Role: model.RoleAdmin}}},
		Auditor: env.auditor,
		Reports: env.reporter,
		JWTMgr:  jwtMgr,
		Logger:  testLogger(),
		Limiter: limiter,

		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	})
	return env
}

func (e *testEnv) token(t *testing.T, role model.Role) string {
	t.Helper()
	tok, _, err := e.jwt.IssueToken(model.User{ID: 42, Username: "user-" + string(role), Role: role})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h model.HealthResponse
	decodeData(t, rec, &h)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)

	env.store.pingErr = errors.New("down")
	rec = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
}

func TestAuthToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{Username: "admin", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tok model.AuthTokenResponse
	decodeData(t, rec, &tok)
	claims, err := env.jwt.ValidateToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	rec = env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{Username: "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthToken_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{RPS: 0.001, Burst: 2})
	t.Cleanup(func() { _ = limiter.Close() })
	env := newTestEnv(t, limiter)

	for range 2 {
		rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{Username: "admin", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{Username: "admin", Password: "correct-horse"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, model.ErrCodeRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGetCharter(t *testing.T) {
	env := newTestEnv(t, nil)
	viewer := env.token(t, model.RoleViewer)

	rec := env.do(t, http.MethodGet, "/v1/charters/019001", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d model.CharterDetail
	decodeData(t, rec, &d)
	assert.Equal(t, "019001", d.Ledger.ReserveNumber)

	rec = env.do(t, http.MethodGet, "/v1/charters/999999", viewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/charters/019001", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReport(t *testing.T) {
	env := newTestEnv(t, nil)
	viewer := env.token(t, model.RoleViewer)

	rec := env.do(t, http.MethodGet, "/v1/reports/charter-balances?from=2024-01-01&to=2024-12-31&all=true", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.reporter.got.All)
	assert.Equal(t, "2024-01-01", env.reporter.got.Range.From.Format(time.DateOnly))

	rec = env.do(t, http.MethodGet, "/v1/reports/charter-balances?format=csv", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "charter-balances.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "reserve_number"), rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/reports/charter-balances?format=text", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/reports/charter-balances?from=yesterday", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/reports/nope", viewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAudit(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/audits", env.token(t, model.RoleViewer), model.AuditRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code, "viewers cannot run audits")

	bookkeeper := env.token(t, model.RoleBookkeeper)
	rec = env.do(t, http.MethodPost, "/v1/audits", bookkeeper, model.AuditRequest{Reserve: " 019001 "})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, env.auditor.got.Reserve)
	assert.Equal(t, "019001", *env.auditor.got.Reserve)
	assert.Equal(t, "user-bookkeeper", env.auditor.got.Actor)

	rec = env.do(t, http.MethodPost, "/v1/audits", bookkeeper, model.AuditRequest{Apply: true})
	assert.Equal(t, http.StatusForbidden, rec.Code, "apply requires admin")

	rec = env.do(t, http.MethodPost, "/v1/audits", env.token(t, model.RoleAdmin), model.AuditRequest{Apply: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp model.AuditResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, model.RunModeApply, resp.Run.Mode)

	rec = env.do(t, http.MethodPost, "/v1/audits", bookkeeper, model.AuditRequest{Checks: []string{"no-such-check"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, rec))
}

func TestAuditFindings(t *testing.T) {
	env := newTestEnv(t, nil)
	viewer := env.token(t, model.RoleViewer)

	rec := env.do(t, http.MethodGet, "/v1/audits/8a6f1f8e-1f5e-4c57-9a3e-0c1b2a3d4e5f/findings", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.AuditResponse
	decodeData(t, rec, &resp)
	assert.Len(t, resp.Findings, 1)

	rec = env.do(t, http.MethodGet, "/v1/audits/not-a-uuid/findings", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/audits/"+uuid.NewString()+"/findings", viewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditEvents_NoBroker(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/audits/events", env.token(t, model.RoleViewer), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnmatchedBanking(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/banking/unmatched?from=2024-03-01", env.token(t, model.RoleViewer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txns []model.BankingTransaction
	decodeData(t, rec, &txns)
	assert.Empty(t, txns)
	assert.Equal(t, "2024-03-01", env.store.gotRange.From.Format(time.DateOnly))
	assert.True(t, env.store.gotRange.To.IsZero())
}
