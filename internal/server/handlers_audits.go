package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/storage"
)

// HandleCreateAudit handles POST /v1/audits. Bookkeepers may run audits;
// applying fixes requires admin.
func (h *Handlers) HandleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req model.AuditRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if req.Apply && !model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "applying fixes requires admin")
		return
	}

	rr := reconcile.Request{Checks: req.Checks, Apply: req.Apply, Actor: claims.Username}
	if reserve := strings.TrimSpace(req.Reserve); reserve != "" {
		rr.Reserve = &reserve
	}
	res, err := h.auditor.Run(r.Context(), rr)
	if errors.Is(err, reconcile.ErrUnknownCheck) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "audit", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.AuditResponse{Run: res.Run, Findings: res.Findings})
}

// HandleAuditFindings handles GET /v1/audits/{run_id}/findings.
func (h *Handlers) HandleAuditFindings(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "run_id must be a UUID")
		return
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	if err != nil {
		h.internalError(w, r, "get run", err)
		return
	}
	findings, err := h.store.ListFindings(r.Context(), runID)
	if err != nil {
		h.internalError(w, r, "list findings", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AuditResponse{Run: run, Findings: findings})
}

// HandleAuditEvents handles GET /v1/audits/events, a Server-Sent Events
// stream of completed runs.
func (h *Handlers) HandleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"event stream not available (NOTIFY_URL not configured)")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The stream outlives the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		return
	}

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
