package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pennywise-app/pennywise/internal/app"
	"github.com/pennywise-app/pennywise/internal/budgets"
	jobmetrics "github.com/pennywise-app/pennywise/internal/jobs"
	"github.com/pennywise-app/pennywise/internal/platform/db"
	"github.com/pennywise-app/pennywise/internal/rbac"
	"github.com/pennywise-app/pennywise/internal/shared"
	"github.com/pennywise-app/pennywise/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool, logger, cfg.AuditBuffer)
	go auditLogger.Run(ctx)

	metrics := jobmetrics.NewMetrics(nil)

	rbacRepo := rbac.NewRepository(pool)
	reconciler := rbac.NewReconciler(rbacRepo, logger)

	budgetsRepo := budgets.NewRepository(pool)
	budgetsService := budgets.NewService(budgetsRepo, auditLogger)

	scanTask, err := jobs.NewBudgetScanTask("")
	if err != nil {
		logger.Error("build budget scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRBACReconcile, Handler: jobs.NewReconcileHandler(reconciler, metrics, logger)},
			{Type: jobs.TaskBudgetScan, Handler: jobs.NewBudgetScanHandler(budgetsService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: jobs.NewReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
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
