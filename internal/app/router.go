package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mizan-books/mizan/internal/documents"
	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/observability"
	"github.com/mizan-books/mizan/internal/payroll"
	"github.com/mizan-books/mizan/internal/statements"
	"github.com/mizan-books/mizan/internal/vat"
	"github.com/mizan-books/mizan/internal/wps"
	"github.com/mizan-books/mizan/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	DocumentsHandler  *documents.Handler
	StatementsHandler *statements.Handler
	VatHandler        *vat.Handler
	PayrollHandler    *payroll.Handler
	WpsHandler        *wps.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the standard middleware chain and
// all module routes mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.DocumentsHandler != nil {
		r.Route("/documents", params.DocumentsHandler.MountRoutes)
	}
	if params.StatementsHandler != nil {
		r.Route("/statements", params.StatementsHandler.MountRoutes)
	}
	if params.VatHandler != nil {
		r.Route("/vat", params.VatHandler.MountRoutes)
	}
	if params.PayrollHandler != nil {
		r.Route("/payroll", params.PayrollHandler.MountRoutes)
	}
	if params.WpsHandler != nil {
		r.Route("/wps", params.WpsHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
