package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/httpx"
)

// Handler exposes the chart of accounts and journal over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts/{id}/children", h.Children)
	r.Post("/accounts/{id}/deactivate", h.Deactivate)
	r.Delete("/accounts/{id}", h.Delete)
	r.Get("/journals", h.ListJournals)
	r.Post("/journals", h.PostJournal)
	r.Post("/journals/{id}/reverse", h.Reverse)
}

type accountRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Type           string `json:"type" validate:"required"`
	SubType        string `json:"subType"`
	ParentID       *int64 `json:"parentId"`
	OpeningBalance int64  `json:"openingBalance" validate:"gte=0"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), AccountInput{
		Code:           req.Code,
		Name:           req.Name,
		Type:           AccountType(req.Type),
		SubType:        AccountSubType(req.SubType),
		ParentID:       req.ParentID,
		OpeningBalance: money.FromFils(req.OpeningBalance),
	})
	if err != nil {
		h.logger.Warn("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, accountView(account))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountViews(accounts))
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	children, err := h.service.GetChildren(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountViews(children))
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "isActive": false})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type journalLineRequest struct {
	AccountID   int64  `json:"accountId" validate:"required"`
	Debit       int64  `json:"debit" validate:"gte=0"`
	Credit      int64  `json:"credit" validate:"gte=0"`
	Description string `json:"description"`
	ContactID   *int64 `json:"contactId"`
}

type journalRequest struct {
	Date        string               `json:"date" validate:"required"`
	Description string               `json:"description"`
	SourceRef   string               `json:"sourceRef" validate:"required,uuid4"`
	Lines       []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) PostJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	ref, err := uuid.Parse(req.SourceRef)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sourceRef must be a UUID")
		return
	}
	lines := make([]PostingLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, PostingLine{
			AccountID:   line.AccountID,
			Debit:       money.FromFils(line.Debit),
			Credit:      money.FromFils(line.Credit),
			Description: line.Description,
			ContactID:   line.ContactID,
		})
	}
	entry, err := h.service.PostEntry(r.Context(), PostingInput{
		Date:        date,
		Description: req.Description,
		Source:      Source{Kind: SourceManual, Ref: ref},
		Lines:       lines,
	})
	if err != nil {
		h.logger.Warn("post journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryView(entry))
}

func (h *Handler) ListJournals(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListEntries(r.Context())
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	reversal, err := h.service.ReverseEntry(r.Context(), ReverseInput{EntryID: id})
	if err != nil {
		h.logger.Warn("reverse journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryView(reversal))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func accountView(a Account) map[string]any {
	return map[string]any{
		"id":             a.ID,
		"code":           a.Code,
		"name":           a.Name,
		"type":           a.Type,
		"subType":        a.SubType,
		"parentId":       a.ParentID,
		"normalBalance":  a.NormalBalance(),
		"openingBalance": a.OpeningBalance.Display(),
		"currentBalance": a.CurrentBalance.Display(),
		"isActive":       a.IsActive,
	}
}

func accountViews(accounts []Account) []map[string]any {
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView(a))
	}
	return out
}

func entryView(e JournalEntry) map[string]any {
	lines := make([]map[string]any, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, map[string]any{
			"accountId":   l.AccountID,
			"debit":       l.Debit.Display(),
			"credit":      l.Credit.Display(),
			"description": l.Description,
		})
	}
	return map[string]any{
		"id":          e.ID,
		"date":        e.Date.Format("2006-01-02"),
		"description": e.Description,
		"sourceKind":  e.Source.Kind,
		"sourceRef":   e.Source.Ref,
		"status":      e.Status,
		"lines":       lines,
	}
}
