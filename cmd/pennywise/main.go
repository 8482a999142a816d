package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pennywise-app/pennywise/internal/app"
	"github.com/pennywise-app/pennywise/internal/audit"
	"github.com/pennywise-app/pennywise/internal/auth"
	"github.com/pennywise-app/pennywise/internal/budgets"
	"github.com/pennywise-app/pennywise/internal/expenses"
	"github.com/pennywise-app/pennywise/internal/observability"
	"github.com/pennywise-app/pennywise/internal/platform/cache"
	"github.com/pennywise-app/pennywise/internal/platform/db"
	"github.com/pennywise-app/pennywise/internal/rbac"
	"github.com/pennywise-app/pennywise/internal/shared"
	"github.com/pennywise-app/pennywise/internal/users"
	"github.com/pennywise-app/pennywise/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pennywise_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(pool, logger, cfg.AuditBuffer)

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo, auditLogger, logger)
	reconciler := rbac.NewReconciler(rbacRepo, logger)
	if err := rbac.Seed(ctx, rbacRepo, logger); err != nil {
		logger.Error("seed rbac", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	guard := rbac.Guard{
		Principals: usersRepo,
		Authorizer: rbacService,
		Logger:     logger,
		Observer:   metrics,
	}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	rbacHandler := rbac.NewHandler(logger, rbacService, reconciler, jobsClient, guard)
	usersHandler := users.NewHandler(logger, usersService, rbacService, guard)

	expensesRepo := expenses.NewRepository(pool)
	expensesService := expenses.NewService(expensesRepo, auditLogger)
	expensesHandler := expenses.NewHandler(logger, expensesService, guard)

	budgetsRepo := budgets.NewRepository(pool)
	budgetsService := budgets.NewService(budgetsRepo, auditLogger)
	budgetsHandler := budgets.NewHandler(logger, budgetsService, guard)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		RBACHandler:     rbacHandler,
		ExpensesHandler: expensesHandler,
		BudgetsHandler:  budgetsHandler,
		AuditHandler:    auditHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auditLogger.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
