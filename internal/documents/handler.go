package documents

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/httpx"
)

// Handler exposes invoices and bills over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches the document endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/issue", h.Issue)
	r.Post("/{id}/payments", h.Payment)
	r.Post("/{id}/cancel", h.Cancel)
	r.Get("/aging", h.Aging)
}

type lineItemRequest struct {
	Description   string `json:"description"`
	QuantityMilli int64  `json:"quantityMilli" validate:"gt=0"`
	UnitPrice     int64  `json:"unitPrice" validate:"gte=0"`
	Discount      int64  `json:"discount" validate:"gte=0"`
	VatRate       int64  `json:"vatRatePermyriad" validate:"gte=0,lte=10000"`
	AccountID     int64  `json:"accountId" validate:"required"`
}

type documentRequest struct {
	Kind      string            `json:"kind" validate:"required,oneof=INVOICE BILL"`
	Number    string            `json:"number"`
	ContactID int64             `json:"contactId" validate:"required"`
	Date      string            `json:"date" validate:"required"`
	DueDate   string            `json:"dueDate"`
	Items     []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
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
	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dueDate must be YYYY-MM-DD")
			return
		}
	}
	items := make([]LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, LineItem{
			Description:   item.Description,
			QuantityMilli: item.QuantityMilli,
			UnitPrice:     money.FromFils(item.UnitPrice),
			Discount:      money.FromFils(item.Discount),
			VatRate:       money.VatRate(item.VatRate),
			AccountID:     item.AccountID,
		})
	}
	doc, err := h.service.Create(r.Context(), Input{
		Kind:      Kind(req.Kind),
		Number:    req.Number,
		ContactID: req.ContactID,
		Date:      date,
		DueDate:   dueDate,
		Items:     items,
	})
	if err != nil {
		h.logger.Warn("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, documentView(doc))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind must be INVOICE or BILL")
		return
	}
	docs, err := h.service.List(r.Context(), kind)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		views = append(views, documentView(doc))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentView(doc))
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.Issue(r.Context(), id)
	if err != nil {
		h.logger.Warn("issue document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentView(doc))
}

type paymentRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) Payment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.RegisterPayment(r.Context(), id, money.FromFils(req.Amount))
	if err != nil {
		h.logger.Warn("register payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentView(doc))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusCancelled})
}

func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind must be INVOICE or BILL")
		return
	}
	buckets, err := h.service.Aging(r.Context(), kind, time.Time{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"current":   buckets.Current.Display(),
		"bucket30":  buckets.Bucket30.Display(),
		"bucket60":  buckets.Bucket60.Display(),
		"bucket90":  buckets.Bucket90.Display(),
		"bucket120": buckets.Bucket120.Display(),
	})
}

func documentView(d Document) map[string]any {
	items := make([]map[string]any, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, map[string]any{
			"description":      item.Description,
			"quantityMilli":    item.QuantityMilli,
			"unitPrice":        item.UnitPrice.Display(),
			"discount":         item.Discount.Display(),
			"vatRatePermyriad": item.VatRate.Permyriad(),
			"accountId":        item.AccountID,
			"lineTotal":        item.LineTotal.Display(),
			"vatAmount":        item.VatAmount.Display(),
		})
	}
	return map[string]any{
		"id":         d.ID,
		"kind":       d.Kind,
		"number":     d.Number,
		"contactId":  d.ContactID,
		"date":       d.Date.Format("2006-01-02"),
		"dueDate":    d.DueDate.Format("2006-01-02"),
		"items":      items,
		"subtotal":   d.Subtotal.Display(),
		"vatTotal":   d.VatTotal.Display(),
		"total":      d.Total.Display(),
		"amountPaid": d.AmountPaid.Display(),
		"status":     d.Status,
	}
}
