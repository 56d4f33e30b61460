package vat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/platform/httpx"
)

// Handler exposes VAT returns over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the VAT handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches the VAT endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/form201", h.Form201)
	r.Get("/returns", h.List)
	r.Post("/returns", h.Create)
	r.Get("/returns/{id}", h.Get)
	r.Post("/returns/{id}/file", h.File)
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (Period, bool) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to query parameters required")
		return Period{}, false
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return Period{}, false
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// Form201 computes box values for an arbitrary period without storing a return.
func (h *Handler) Form201(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	form, err := h.service.Compute(r.Context(), period)
	if err != nil {
		h.logger.Error("compute form 201", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, formView(form))
}

type createReturnRequest struct {
	PeriodStart string `json:"periodStart" validate:"required"`
	PeriodEnd   string `json:"periodEnd" validate:"required"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "periodStart must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "periodEnd must be YYYY-MM-DD")
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), Period{Start: start, End: end})
	if err != nil {
		h.logger.Warn("create vat return", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, returnView(ret))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rets, err := h.service.ListReturns(r.Context())
	if err != nil {
		h.logger.Error("list vat returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(rets))
	for _, ret := range rets {
		views = append(views, returnView(ret))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid return id")
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnView(ret))
}

type fileReturnRequest struct {
	FilingReference string `json:"filingReference" validate:"required"`
}

func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid return id")
		return
	}
	var req fileReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.FileReturn(r.Context(), id, req.FilingReference)
	if err != nil {
		h.logger.Warn("file vat return", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnView(ret))
}

func bucketViews(buckets []RateBucket) []map[string]any {
	views := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		views = append(views, map[string]any{
			"ratePermyriad": b.Rate.Permyriad(),
			"rate":          b.Rate.PercentString(),
			"taxable":       b.Taxable.Display(),
			"vat":           b.Vat.Display(),
		})
	}
	return views
}

func formView(f Form201) map[string]any {
	return map[string]any{
		"box1_standardRatedSupplies": f.Box1StandardRatedSupplies.Display(),
		"box4_zeroRatedSupplies":     f.Box4ZeroRatedSupplies.Display(),
		"box6_standardRatedExpenses": f.Box6StandardRatedExpenses.Display(),
		"box9_netVatDue":             f.Box9NetVatDue.Display(),
		"outputVat":                  f.OutputVat.Display(),
		"inputVat":                   f.InputVat.Display(),
		"refundable":                 f.Refundable(),
		"supplyBuckets":              bucketViews(f.SupplyBuckets),
		"expenseBuckets":             bucketViews(f.ExpenseBuckets),
	}
}

func returnView(ret VatReturn) map[string]any {
	view := map[string]any{
		"id":          ret.ID,
		"periodStart": ret.PeriodStart.Format("2006-01-02"),
		"periodEnd":   ret.PeriodEnd.Format("2006-01-02"),
		"status":      ret.Status,
		"form201":     formView(ret.Form),
	}
	if ret.FilingReference != "" {
		view["filingReference"] = ret.FilingReference
	}
	if ret.FiledAt != nil {
		view["filedAt"] = ret.FiledAt.Format(time.RFC3339)
	}
	return view
}
