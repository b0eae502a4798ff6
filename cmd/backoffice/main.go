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

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/menu"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/recipes"
	"github.com/odyssey-erp/backoffice/internal/reports"
	"github.com/odyssey-erp/backoffice/internal/requisitions"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tables"
	"github.com/odyssey-erp/backoffice/jobs"
)

// warmingInvalidator drops the report cache and queues a warmup so the next
// dashboard read is served from cache. Duplicate warmups within a minute are
// collapsed by the queue.
type warmingInvalidator struct {
	reports *reports.Service
	jobs    *jobs.Client
	logger  *slog.Logger
}

func (w warmingInvalidator) Invalidate(ctx context.Context) error {
	if err := w.reports.Invalidate(ctx); err != nil {
		return err
	}
	if w.jobs == nil {
		return nil
	}
	if _, err := w.jobs.EnqueueReportsWarmup(ctx, jobs.ReportsWarmupPayload{}); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		w.logger.Warn("enqueue reports warmup", slog.Any("error", err))
	}
	return nil
}

func main() {
	if app.SkipStartup(slog.Default(), "backoffice") {
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := shared.NewSessionStore(redisClient, cfg.SessionPrefix)
	auditLogger := shared.NewAuditLogger(dbpool, logger)
	approvalRecorder := shared.NewApprovalRecorder(logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)

	recipesRepo := recipes.NewRepository(dbpool)
	recipesService := recipes.NewService(recipesRepo, logger)

	menuRepo := menu.NewRepository(dbpool)
	menuService := menu.NewService(menuRepo)

	tablesRepo := tables.NewRepository(dbpool)
	tablesService := tables.NewService(tablesRepo)

	reportsRepo := reports.NewRepository(dbpool)
	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reportsRepo, reportsCache, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, menuRepo, inventoryRepo, logger).
		WithIdempotency(idempotencyStore).
		WithReports(warmingInvalidator{reports: reportsService, jobs: jobClient, logger: logger}).
		WithObserver(metrics)

	requisitionsRepo := requisitions.NewRepository(dbpool, approvalRecorder)
	requisitionsService := requisitions.NewService(requisitionsRepo, rbacService, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Sessions:            sessions,
		Metrics:             metrics,
		InventoryHandler:    inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		RecipesHandler:      recipes.NewHandler(logger, recipesService, rbacMiddleware),
		MenuHandler:         menu.NewHandler(logger, menuService, rbacMiddleware),
		TablesHandler:       tables.NewHandler(logger, tablesService, rbacMiddleware),
		OrdersHandler:       orders.NewHandler(logger, ordersService, rbacMiddleware),
		RequisitionsHandler: requisitions.NewHandler(logger, requisitionsService, rbacMiddleware),
		ReportsHandler:      reports.NewHandler(logger, reportsService, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(rbacService),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
