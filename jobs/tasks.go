// Package jobs defines the background tasks and the Asynq worker runtime.
// Two recurring tasks keep the books honest: the overdue scan flags past-due
// documents, and the ledger integrity check recomputes balances from posted
// lines and reports drift.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mizan-books/mizan/internal/documents"
	jobmetrics "github.com/mizan-books/mizan/internal/jobs"
	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOverdueScan flags issued documents whose due date passed.
	TaskTypeOverdueScan = "documents:overdue_scan"
	// TaskTypeLedgerIntegrity recomputes balances and reports drift.
	TaskTypeLedgerIntegrity = "ledger:integrity"
)

// OverdueScanPayload carries the scan cutoff. A zero AsOf means now.
type OverdueScanPayload struct {
	AsOf time.Time `json:"asOf"`
}

// NewOverdueScanTask constructs an overdue-scan task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOverdueScan, data), nil
}

// NewOverdueScanHandler returns the handler for TaskTypeOverdueScan.
func NewOverdueScanHandler(logger *slog.Logger, docs *documents.Service, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("overdue_scan")
		var payload OverdueScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		marked, err := docs.MarkOverdue(ctx, asOf)
		if err != nil {
			return tracker.End(fmt.Errorf("jobs: overdue scan: %w", err))
		}
		logger.Info("overdue scan complete",
			slog.Time("asOf", asOf),
			slog.Int("marked", marked))
		return tracker.End(nil)
	}
}

// NewLedgerIntegrityTask constructs a ledger-integrity task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerIntegrity, nil)
}

// NewLedgerIntegrityHandler returns the handler for TaskTypeLedgerIntegrity.
// It folds every account's posted lines over its opening balance and compares
// the result against the stored current balance; any mismatch is returned as
// an error so the run surfaces as failed.
func NewLedgerIntegrityHandler(logger *slog.Logger, repo ledger.RepositoryPort, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		var drifted []string
		err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
			accounts, err := tx.ListAccounts(ctx)
			if err != nil {
				return err
			}
			totals, err := tx.SumPostedLines(ctx, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			for _, acc := range accounts {
				agg := totals[acc.ID]
				delta := acc.NormalBalance().Delta(money.FromFils(agg.Debit), money.FromFils(agg.Credit))
				derived := acc.OpeningBalance.Add(delta)
				if derived != acc.CurrentBalance {
					drifted = append(drifted, fmt.Sprintf("%s (stored %s, derived %s)",
						acc.Code, acc.CurrentBalance.Display(), derived.Display()))
				}
			}
			return nil
		})
		if err != nil {
			return tracker.End(fmt.Errorf("jobs: ledger integrity: %w", err))
		}
		if len(drifted) > 0 {
			logger.Error("ledger balance drift detected", slog.Any("accounts", drifted))
			return tracker.End(fmt.Errorf("jobs: ledger integrity: %d account(s) drifted: %v", len(drifted), drifted))
		}
		logger.Info("ledger integrity check passed")
		return tracker.End(nil)
	}
}
