package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{LockTimeout: cfg.PGLockTimeout})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	clock := shared.SystemClock{}
	ledger := stock.NewLedger(stock.Policy{AllowNegativeStock: cfg.StockAllowNegative}, clock)
	builder := invoicing.NewBuilder(clock)
	invoiceRepo := invoicing.NewRepository(pool)
	invoiceService := invoicing.NewService(invoiceRepo, builder, auditLogger, nil, logger)
	warehouseService := warehouse.NewService(warehouse.NewRepository(pool), ledger,
		warehouse.Policy{RestoreStockOnCancel: cfg.WarehouseCancelRestoresStock}, auditLogger, nil, logger)

	fulfillmentService := fulfillment.NewService(fulfillment.Deps{
		Repo:     fulfillment.NewRepository(pool),
		Orders:   orders.NewService(orders.NewRepository(pool), auditLogger, clock, logger),
		Ledger:   ledger,
		Builder:  builder,
		Verifier: fulfillment.NewSignatureVerifier(cfg.PayUSecondKey),
		Renders:  jobClient,
		Audit:    auditLogger,
		Clock:    clock,
		Logger:   logger,
	})

	documentService, err := documents.NewService(invoiceService, warehouseService,
		report.NewClient(cfg.GotenbergURL, logger),
		documents.NewCache(redisClient, cfg.DocumentCacheTTL), cfg.Seller(), logger)
	if err != nil {
		logger.Error("init documents", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	retryJob := jobs.NewFulfillmentRetryJob(fulfillmentService, logger, metrics)
	renderJob := jobs.NewDocumentsRenderJob(documentService, logger, metrics)
	auditJob := jobs.NewNumberingAuditJob(invoiceRepo, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFulfillmentRetry, Handler: retryJob.Handle},
			{Type: jobs.TaskDocumentsRender, Handler: renderJob.Handle},
			{Type: jobs.TaskNumberingAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.NumberingAuditSchedule, Task: jobs.NewNumberingAuditTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
