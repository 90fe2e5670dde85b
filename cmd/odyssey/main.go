package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/payu"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		code := runCommand(ctx, cfg, logger, os.Args[1:])
		stop()
		os.Exit(code)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{LockTimeout: cfg.PGLockTimeout})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		if _, err := db.Migrate(ctx, dbpool, logger); err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, document cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

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
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	clock := shared.SystemClock{}
	ledger := stock.NewLedger(stock.Policy{AllowNegativeStock: cfg.StockAllowNegative}, clock)
	builder := invoicing.NewBuilder(clock)

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), auditLogger, clock)
	stockService := stock.NewService(stock.NewRepository(dbpool), ledger, auditLogger, metrics, logger)
	invoiceService := invoicing.NewService(invoicing.NewRepository(dbpool), builder, auditLogger, metrics, logger)
	orderService := orders.NewService(orders.NewRepository(dbpool), auditLogger, clock, logger)
	warehouseService := warehouse.NewService(warehouse.NewRepository(dbpool), ledger,
		warehouse.Policy{RestoreStockOnCancel: cfg.WarehouseCancelRestoresStock}, auditLogger, metrics, logger)

	deps := fulfillment.Deps{
		Repo:     fulfillment.NewRepository(dbpool),
		Orders:   orderService,
		Ledger:   ledger,
		Builder:  builder,
		Verifier: fulfillment.NewSignatureVerifier(cfg.PayUSecondKey),
		Queue:    jobClient,
		Renders:  jobClient,
		Audit:    auditLogger,
		Metrics:  metrics,
		Clock:    clock,
		Logger:   logger,
	}
	if cfg.PayU().Enabled() {
		deps.Gateway = payu.NewClient(cfg.PayU(), logger)
	} else {
		logger.Warn("payu not configured, online payments disabled")
	}
	fulfillmentService := fulfillment.NewService(deps)
	cartService := cart.NewService(cart.NewRepository(dbpool), fulfillmentService, auditLogger, clock, logger)
	reportService := reports.NewService(reports.NewStore(dbpool),
		reports.NewCache(redisClient, cfg.ReportCacheTTL, logger), logger)

	gotenberg := report.NewClient(cfg.GotenbergURL, logger)
	documentService, err := documents.NewService(invoiceService, warehouseService, gotenberg,
		documents.NewCache(redisClient, cfg.DocumentCacheTTL), cfg.Seller(), logger)
	if err != nil {
		logger.Error("init documents", slog.Any("error", err))
		os.Exit(1)
	}

	checks := []app.HealthCheck{
		{Name: "postgres", Critical: true, Check: dbpool.Ping},
		{Name: "gotenberg", Check: gotenberg.Ping},
	}
	if redisClient != nil {
		checks = append(checks, app.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalog.NewHandler(logger, catalogService),
		StockHandler:       stock.NewHandler(logger, stockService),
		InvoicingHandler:   invoicing.NewHandler(logger, invoiceService),
		OrdersHandler:      orders.NewHandler(logger, orderService),
		WarehouseHandler:   warehouse.NewHandler(logger, warehouseService),
		FulfillmentHandler: fulfillment.NewHandler(logger, fulfillmentService),
		DocumentsHandler:   documents.NewHandler(logger, documentService, documents.NewRegister(invoiceService, warehouseService)),
		CartHandler:        cart.NewHandler(logger, cartService),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewStore(dbpool))),
		ReportsHandler:     reports.NewHandler(logger, reportService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		HealthChecks:       checks,
		Metrics:            metrics,
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

// runCommand executes an operator subcommand and returns the exit code.
//
//	odyssey jobs retry-fulfillment --order 12
//	odyssey jobs prerender --invoice 7 --doc 3
//	odyssey jobs stats
//	odyssey invoices check-numbering [--json]
//	odyssey db migrate
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) < 2 {
		logger.Error("usage: odyssey <jobs|invoices|db> <action> [flags]")
		return 2
	}
	group, action := args[0], args[1]
	flags := flag.NewFlagSet(group+" "+action, flag.ContinueOnError)
	switch group {
	case "jobs":
		opts := cli.JobsOptions{Action: action}
		flags.Int64Var(&opts.OrderID, "order", 0, "order id")
		flags.Int64Var(&opts.InvoiceID, "invoice", 0, "invoice id")
		flags.Int64Var(&opts.DocumentID, "doc", 0, "goods-issue note id")
		if err := flags.Parse(args[2:]); err != nil {
			return 2
		}
		redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			logger.Error("redis options", slog.Any("error", err))
			return 1
		}
		client := jobs.NewClient(redisOpts, logger)
		defer client.Close()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		return cli.NewJobsCLI(client, inspector).Command(ctx, opts)
	case "invoices":
		if action != "check-numbering" {
			logger.Error("unknown invoices action", slog.String("action", action))
			return 2
		}
		var opts cli.NumberingOptions
		flags.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := flags.Parse(args[2:]); err != nil {
			return 2
		}
		pool, err := pgxpool.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		return cli.NewNumberingCLI(invoicing.NewRepository(pool)).CheckCommand(ctx, opts)
	case "db":
		if action != "migrate" {
			logger.Error("unknown db action", slog.String("action", action))
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		applied, err := db.Migrate(ctx, pool, logger)
		if err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			return 1
		}
		logger.Info("schema up to date", slog.Int("applied", len(applied)))
		return 0
	default:
		logger.Error("unknown command", slog.String("command", group))
		return 2
	}
}

