package wps

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/payroll"
	"github.com/mizan-books/mizan/internal/platform/httpx"
)

// PayrollPort is the slice of payroll the exporter needs.
type PayrollPort interface {
	GetRun(ctx context.Context, id uuid.UUID) (payroll.PayrollRun, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]payroll.Employee, error)
}

// Handler exposes SIF exports over HTTP.
type Handler struct {
	payroll  PayrollPort
	employer Employer
	logger   *slog.Logger
}

// NewHandler constructs the WPS handler.
func NewHandler(logger *slog.Logger, payrollPort PayrollPort, employer Employer) *Handler {
	return &Handler{payroll: payrollPort, employer: employer, logger: logger}
}

// MountRoutes attaches the export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/runs/{id}/sif", h.Download)
	r.Get("/runs/{id}/report", h.Report)
}

func (h *Handler) encode(w http.ResponseWriter, r *http.Request) (File, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return File{}, false
	}
	run, err := h.payroll.GetRun(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return File{}, false
	}
	employees, err := h.payroll.ListEmployees(r.Context(), false)
	if err != nil {
		h.logger.Error("list employees for export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return File{}, false
	}
	file, err := Encode(h.employer, run, employees)
	if err != nil {
		h.logger.Warn("encode sif", slog.String("run", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return File{}, false
	}
	return file, true
}

// Download streams the SIF file body.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	file, ok := h.encode(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	_, _ = w.Write([]byte(file.Content))
}

// Report returns export metadata and the ineligibility list without the body.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	file, ok := h.encode(w, r)
	if !ok {
		return
	}
	ineligible := make([]map[string]any, 0, len(file.Ineligible))
	for _, skip := range file.Ineligible {
		ineligible = append(ineligible, map[string]any{
			"employeeId": skip.EmployeeID,
			"name":       skip.Name,
			"reasons":    skip.Reasons,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"fileName":    file.Name,
		"recordCount": file.RecordCount,
		"totalNet":    file.TotalNet.Display(),
		"ineligible":  ineligible,
	})
}
