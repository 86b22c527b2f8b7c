package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
	"github.com/arrowlimo/alms/internal/storage"
)

// Store is the read side of storage the handlers use.
type Store interface {
	Ping(ctx context.Context) error
	GetCharterDetail(ctx context.Context, reserveNumber string) (model.CharterDetail, error)
	GetRun(ctx context.Context, id uuid.UUID) (model.ReconciliationRun, error)
	ListFindings(ctx context.Context, runID uuid.UUID) ([]model.Finding, error)
	UnmatchedDebits(ctx context.Context, r model.DateRange) ([]model.BankingTransaction, error)
}

// Authenticator signs users in.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (auth.Token, error)
}

// Auditor runs reconciliation passes.
type Auditor interface {
	Run(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
}

// Reporter builds named reports.
type Reporter interface {
	Generate(ctx context.Context, name string, p report.Params) (report.Report, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	users               Authenticator
	auditor             Auditor
	reports             Reporter
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Broker, OpenAPISpec.
type HandlersDeps struct {
	Store               Store
	Users               Authenticator
	Auditor             Auditor
	Reports             Reporter
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		users:               d.Users,
		auditor:             d.Auditor,
		reports:             d.Reports,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "username and password are required")
		return
	}

	tok, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.internalError(w, r, "auth token", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: tok.Token, ExpiresAt: tok.ExpiresAt})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Postgres: "connected",
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Postgres = "disconnected"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleGetCharter handles GET /v1/charters/{reserve}.
func (h *Handlers) HandleGetCharter(w http.ResponseWriter, r *http.Request) {
	reserve := r.PathValue("reserve")
	detail, err := h.store.GetCharterDetail(r.Context(), reserve)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "charter not found")
		return
	}
	if err != nil {
		h.internalError(w, r, "get charter", err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// HandleUnmatchedBanking handles GET /v1/banking/unmatched.
func (h *Handlers) HandleUnmatchedBanking(w http.ResponseWriter, r *http.Request) {
	dr, ok := parseRange(w, r)
	if !ok {
		return
	}
	txns, err := h.store.UnmatchedDebits(r.Context(), dr)
	if err != nil {
		h.internalError(w, r, "unmatched banking", err)
		return
	}
	if txns == nil {
		txns = []model.BankingTransaction{}
	}
	writeJSON(w, r, http.StatusOK, txns)
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error("http: "+op, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
}

func parseRange(w http.ResponseWriter, r *http.Request) (model.DateRange, bool) {
	q := r.URL.Query()
	dr, err := model.ParseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return dr, false
	}
	return dr, true
}
