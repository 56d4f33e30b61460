package payroll

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/httpx"
)

// Handler exposes employees and pay runs over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the payroll handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches the payroll endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees", h.ListEmployees)
	r.Post("/employees", h.CreateEmployee)
	r.Get("/employees/{id}", h.GetEmployee)
	r.Put("/employees/{id}", h.UpdateEmployee)
	r.Post("/employees/{id}/deactivate", h.DeactivateEmployee)
	r.Get("/runs", h.ListRuns)
	r.Post("/runs", h.CreateRun)
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/{id}/approve", h.ApproveRun)
	r.Post("/runs/{id}/process", h.ProcessRun)
}

type employeeRequest struct {
	Name               string `json:"name" validate:"required"`
	LabourCardNo       string `json:"labourCardNo"`
	IBAN               string `json:"iban"`
	BankRoutingCode    string `json:"bankRoutingCode"`
	EmiratesID         string `json:"emiratesId"`
	BasicSalary        int64  `json:"basicSalary" validate:"gte=0"`
	HousingAllowance   int64  `json:"housingAllowance" validate:"gte=0"`
	TransportAllowance int64  `json:"transportAllowance" validate:"gte=0"`
	OtherAllowances    int64  `json:"otherAllowances" validate:"gte=0"`
}

func (req employeeRequest) toInput() EmployeeInput {
	return EmployeeInput{
		Name:               req.Name,
		LabourCardNo:       req.LabourCardNo,
		IBAN:               req.IBAN,
		BankRoutingCode:    req.BankRoutingCode,
		EmiratesID:         req.EmiratesID,
		BasicSalary:        money.FromFils(req.BasicSalary),
		HousingAllowance:   money.FromFils(req.HousingAllowance),
		TransportAllowance: money.FromFils(req.TransportAllowance),
		OtherAllowances:    money.FromFils(req.OtherAllowances),
	}
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	emp, err := h.service.CreateEmployee(r.Context(), req.toInput())
	if err != nil {
		h.logger.Warn("create employee", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, employeeView(emp))
}

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	emps, err := h.service.ListEmployees(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list employees", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(emps))
	for _, emp := range emps {
		views = append(views, employeeView(emp))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func employeeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return 0, false
	}
	return id, true
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	emp, err := h.service.GetEmployee(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, employeeView(emp))
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	var req employeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	emp, err := h.service.UpdateEmployee(r.Context(), id, req.toInput())
	if err != nil {
		h.logger.Warn("update employee", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, employeeView(emp))
}

func (h *Handler) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateEmployee(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "isActive": false})
}

type runItemRequest struct {
	EmployeeID         int64 `json:"employeeId" validate:"required"`
	OvertimeHoursMilli int64 `json:"overtimeHoursMilli" validate:"gte=0"`
	OvertimeAmount     int64 `json:"overtimeAmount" validate:"gte=0"`
	LeaveSalary        int64 `json:"leaveSalary" validate:"gte=0"`
	Deductions         int64 `json:"deductions" validate:"gte=0"`
	DaysPaid           int   `json:"daysPaid" validate:"gte=0,lte=31"`
	Leave              int   `json:"leave" validate:"gte=0,lte=2"`
}

type runRequest struct {
	Month int              `json:"month" validate:"required,gte=1,lte=12"`
	Year  int              `json:"year" validate:"required"`
	Items []runItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]RunItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, RunItemInput{
			EmployeeID:         item.EmployeeID,
			OvertimeHoursMilli: item.OvertimeHoursMilli,
			OvertimeAmount:     money.FromFils(item.OvertimeAmount),
			LeaveSalary:        money.FromFils(item.LeaveSalary),
			Deductions:         money.FromFils(item.Deductions),
			DaysPaid:           item.DaysPaid,
			Leave:              LeaveFlag(item.Leave),
		})
	}
	run, err := h.service.CreateRun(r.Context(), RunInput{Month: req.Month, Year: req.Year, Items: items})
	if err != nil {
		h.logger.Warn("create payroll run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, runView(run))
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runView(run))
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.logger.Error("list payroll runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView(run))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) ApproveRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := h.service.ApproveRun(r.Context(), id)
	if err != nil {
		h.logger.Warn("approve payroll run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runView(run))
}

func (h *Handler) ProcessRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := h.service.ProcessRun(r.Context(), id)
	if err != nil {
		h.logger.Warn("process payroll run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runView(run))
}

func employeeView(e Employee) map[string]any {
	return map[string]any{
		"id":                 e.ID,
		"name":               e.Name,
		"labourCardNo":       e.LabourCardNo,
		"iban":               e.IBAN,
		"bankRoutingCode":    e.BankRoutingCode,
		"emiratesId":         e.EmiratesID,
		"basicSalary":        e.BasicSalary.Display(),
		"housingAllowance":   e.HousingAllowance.Display(),
		"transportAllowance": e.TransportAllowance.Display(),
		"otherAllowances":    e.OtherAllowances.Display(),
		"isActive":           e.IsActive,
	}
}

func runView(run PayrollRun) map[string]any {
	items := make([]map[string]any, 0, len(run.Items))
	for _, item := range run.Items {
		items = append(items, map[string]any{
			"employeeId":         item.EmployeeID,
			"basicSalary":        item.BasicSalary.Display(),
			"housingAllowance":   item.HousingAllowance.Display(),
			"transportAllowance": item.TransportAllowance.Display(),
			"otherAllowances":    item.OtherAllowances.Display(),
			"overtimeHoursMilli": item.OvertimeHoursMilli,
			"overtimeAmount":     item.OvertimeAmount.Display(),
			"leaveSalary":        item.LeaveSalary.Display(),
			"deductions":         item.Deductions.Display(),
			"netSalary":          item.NetSalary.Display(),
			"daysPaid":           item.DaysPaid,
			"leave":              int(item.Leave),
		})
	}
	view := map[string]any{
		"id":         run.ID,
		"month":      run.Month,
		"year":       run.Year,
		"status":     run.Status,
		"items":      items,
		"totalGross": run.TotalGross().Display(),
		"totalNet":   run.TotalNet().Display(),
	}
	if run.ProcessedAt != nil {
		view["processedAt"] = run.ProcessedAt
	}
	return view
}
