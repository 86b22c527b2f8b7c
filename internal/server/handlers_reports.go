package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/report"
)

// HandleReport handles GET /v1/reports/{name}.
// format=json (default) wraps the report in the envelope; csv and xlsx
// return the rendered file.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := report.FormatJSON
	if f := q.Get("format"); f != "" {
		parsed, err := report.ParseFormat(f)
		if err != nil || parsed == report.FormatText {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be json, csv or xlsx")
			return
		}
		format = parsed
	}
	dr, ok := parseRange(w, r)
	if !ok {
		return
	}
	params := report.Params{Range: dr}
	if v := q.Get("all"); v != "" {
		all, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "all must be a boolean")
			return
		}
		params.All = all
	}
	if v := q.Get("as_of"); v != "" {
		asOf, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "as_of must be YYYY-MM-DD")
			return
		}
		params.AsOf = asOf
	}

	name := r.PathValue("name")
	rep, err := h.reports.Generate(r.Context(), name, params)
	if errors.Is(err, report.ErrUnknownReport) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "report "+name, err)
		return
	}

	if format == report.FormatJSON {
		writeJSON(w, r, http.StatusOK, rep)
		return
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, rep, format); err != nil {
		h.internalError(w, r, "render report", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
