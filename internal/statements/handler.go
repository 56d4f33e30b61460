package statements

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/mizan-books/mizan/internal/platform/httpx"
)

const cacheTTL = 5 * time.Minute

// Handler serves statement reads. Derivations are pure but not free, so
// responses are cached in Redis keyed by statement and date, with a
// singleflight group collapsing concurrent rebuilds of the same key.
type Handler struct {
	service *Service
	logger  *slog.Logger
	cache   *redis.Client
	group   singleflight.Group
}

// NewHandler constructs the statements handler. cache may be nil.
func NewHandler(logger *slog.Logger, service *Service, cache *redis.Client) *Handler {
	return &Handler{service: service, logger: logger, cache: cache}
}

// MountRoutes attaches the statement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/balance-sheet", h.BalanceSheet)
	r.Get("/profit-loss", h.ProfitAndLoss)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "asOf")
	if !ok {
		return
	}
	h.serveCached(w, r, "stmt:tb:"+asOf.Format("2006-01-02"), func(ctx context.Context) (any, error) {
		tb, err := h.service.TrialBalance(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return trialBalanceView(tb), nil
	})
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "asOf")
	if !ok {
		return
	}
	h.serveCached(w, r, "stmt:bs:"+asOf.Format("2006-01-02"), func(ctx context.Context) (any, error) {
		bs, err := h.service.BalanceSheet(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return balanceSheetView(bs), nil
	})
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, ok := dateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to")
	if !ok {
		return
	}
	key := "stmt:pl:" + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
	h.serveCached(w, r, key, func(ctx context.Context) (any, error) {
		pl, err := h.service.ProfitAndLoss(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return profitAndLossView(pl), nil
	})
}

// serveCached answers from Redis when possible and otherwise builds the
// view once per key, sharing the result across concurrent requests.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, build func(context.Context) (any, error)) {
	ctx := r.Context()
	if h.cache != nil {
		if payload, err := h.cache.Get(ctx, key).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(payload)
			return
		}
	}
	result, err, _ := h.buildShared(ctx, key, build)
	if err != nil {
		h.logger.Error("derive statement", slog.String("key", key), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, payload, cacheTTL).Err(); err != nil {
			h.logger.Warn("cache statement", slog.String("key", key), slog.Any("error", err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (h *Handler) buildShared(ctx context.Context, key string, build func(context.Context) (any, error)) (any, error, bool) {
	resultChan := h.group.DoChan(key, func() (interface{}, error) {
		return build(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func dateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" query parameter required")
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func trialBalanceView(tb TrialBalance) map[string]any {
	rows := make([]map[string]any, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		rows = append(rows, map[string]any{
			"code":   row.Code,
			"name":   row.Name,
			"type":   row.Type,
			"debit":  row.Debit.Display(),
			"credit": row.Credit.Display(),
		})
	}
	return map[string]any{
		"rows":        rows,
		"totalDebit":  tb.TotalDebit.Display(),
		"totalCredit": tb.TotalCredit.Display(),
		"isBalanced":  tb.IsBalanced(),
	}
}

func sectionView(s BalanceSheetSection) map[string]any {
	rows := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		rows = append(rows, map[string]any{
			"code":    row.Code,
			"name":    row.Name,
			"balance": row.Balance.Display(),
		})
	}
	return map[string]any{"label": s.Label, "rows": rows, "total": s.Total.Display()}
}

func balanceSheetView(bs BalanceSheet) map[string]any {
	return map[string]any{
		"currentAssets":             sectionView(bs.CurrentAssets),
		"fixedAssets":               sectionView(bs.FixedAssets),
		"currentLiabilities":        sectionView(bs.CurrentLiabilities),
		"longTermLiabilities":       sectionView(bs.LongTermLiabilities),
		"equity":                    sectionView(bs.Equity),
		"assetsTotal":               bs.AssetsTotal.Display(),
		"liabilitiesTotal":          bs.LiabilitiesTotal.Display(),
		"equityTotal":               bs.EquityTotal.Display(),
		"totalLiabilitiesAndEquity": bs.TotalLiabilitiesAndEquity.Display(),
		"isBalanced":                bs.IsBalanced(),
	}
}

func plSectionView(s ProfitAndLossSection) map[string]any {
	rows := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		rows = append(rows, map[string]any{
			"code":   row.Code,
			"name":   row.Name,
			"amount": row.Amount.Display(),
		})
	}
	return map[string]any{"label": s.Label, "rows": rows, "total": s.Total.Display()}
}

func profitAndLossView(pl ProfitAndLoss) map[string]any {
	return map[string]any{
		"revenue":     plSectionView(pl.Revenue),
		"costOfSales": plSectionView(pl.CostOfSales),
		"expenses":    plSectionView(pl.Expenses),
		"otherIncome": plSectionView(pl.OtherIncome),
		"grossProfit": pl.GrossProfit.Display(),
		"netProfit":   pl.NetProfit.Display(),
	}
}
