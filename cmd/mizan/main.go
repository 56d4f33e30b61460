package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mizan-books/mizan/internal/app"
	"github.com/mizan-books/mizan/internal/documents"
	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/observability"
	"github.com/mizan-books/mizan/internal/payroll"
	"github.com/mizan-books/mizan/internal/platform/cache"
	"github.com/mizan-books/mizan/internal/platform/db"
	"github.com/mizan-books/mizan/internal/shared"
	"github.com/mizan-books/mizan/internal/statements"
	"github.com/mizan-books/mizan/internal/vat"
	"github.com/mizan-books/mizan/internal/wps"
	"github.com/mizan-books/mizan/jobs"
)

func resolveAccount(ctx context.Context, svc *ledger.Service, code string) (int64, error) {
	account, err := svc.GetAccountByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("resolve control account %s (seed the chart of accounts first): %w", code, err)
	}
	return account.ID, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Statement caching degrades gracefully without Redis.
		logger.Warn("redis connect", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	docAccounts := documents.PostingAccounts{}
	payrollAccounts := payroll.PostingAccounts{}
	for _, bind := range []struct {
		code   string
		target *int64
	}{
		{cfg.ReceivableAccountCode, &docAccounts.Receivable},
		{cfg.PayableAccountCode, &docAccounts.Payable},
		{cfg.OutputVATAccountCode, &docAccounts.OutputVAT},
		{cfg.InputVATAccountCode, &docAccounts.InputVAT},
		{cfg.SalaryExpenseAccountCode, &payrollAccounts.SalaryExpense},
		{cfg.PayrollPayableAccountCode, &payrollAccounts.PayrollPayable},
		{cfg.DeductionsPayableAccountCode, &payrollAccounts.DeductionsPayable},
	} {
		id, err := resolveAccount(ctx, ledgerService, bind.code)
		if err != nil {
			logger.Error("control accounts", slog.Any("error", err))
			os.Exit(1)
		}
		*bind.target = id
	}

	documentsRepo := documents.NewRepository(dbpool)
	documentsService := documents.NewService(documentsRepo, ledgerService, docAccounts, auditLogger)
	documentsHandler := documents.NewHandler(logger, documentsService)

	statementsService := statements.NewService(ledgerRepo)
	statementsHandler := statements.NewHandler(logger, statementsService, redisClient)

	vatRepo := vat.NewRepository(dbpool)
	vatService := vat.NewService(vatRepo, documentsService, auditLogger)
	vatHandler := vat.NewHandler(logger, vatService)

	payrollRepo := payroll.NewRepository(dbpool)
	payrollService := payroll.NewService(payrollRepo, ledgerService, payrollAccounts, auditLogger)
	payrollHandler := payroll.NewHandler(logger, payrollService)

	employer := wps.Employer{Name: cfg.CompanyName, TRN: cfg.CompanyTRN}
	wpsHandler := wps.NewHandler(logger, payrollService, employer)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		DocumentsHandler:  documentsHandler,
		StatementsHandler: statementsHandler,
		VatHandler:        vatHandler,
		PayrollHandler:    payrollHandler,
		WpsHandler:        wpsHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
