package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mizan-books/mizan/internal/app"
	"github.com/mizan-books/mizan/internal/documents"
	jobmetrics "github.com/mizan-books/mizan/internal/jobs"
	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/platform/db"
	"github.com/mizan-books/mizan/internal/shared"
	"github.com/mizan-books/mizan/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)

	documentsRepo := documents.NewRepository(pool)
	// The worker only marks documents overdue; posting accounts stay unbound.
	documentsService := documents.NewService(documentsRepo, ledgerService, documents.PostingAccounts{}, auditLogger)

	metrics := jobmetrics.NewMetrics(nil)

	overdueTask, err := jobs.NewOverdueScanTask(jobs.OverdueScanPayload{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOverdueScan, Handler: jobs.NewOverdueScanHandler(logger, documentsService, metrics)},
			{Type: jobs.TaskTypeLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(logger, ledgerRepo, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.OverdueScanInterval.String(), Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
