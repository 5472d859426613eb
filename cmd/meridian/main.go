package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/invoicing"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/contacts"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func main() {
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

	// Statistics caching degrades to direct queries when Redis is down.
	var statsCache *cache.JSONCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, statistics caching disabled", slog.Any("error", err))
	} else {
		statsCache = cache.NewJSONCache(redisClient, cfg.StatsCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	productRepo := products.NewRepository(dbpool)
	productService := products.NewService(productRepo)
	productHandler := products.NewHandler(logger, productService, validate)

	warehouseRepo := warehouses.NewRepository(dbpool)
	warehouseService := warehouses.NewService(warehouseRepo)
	warehouseHandler := warehouses.NewHandler(logger, warehouseService, validate)

	contactRepo := contacts.NewRepository(dbpool)
	contactService := contacts.NewService(contactRepo)
	contactHandler := contacts.NewHandler(logger, contactService, validate)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, statsCache)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, validate)

	invoicingRepo := invoicing.NewRepository(dbpool)
	invoicingService := invoicing.NewService(invoicingRepo, auditLogger, idempotencyStore)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService, validate)

	productionRepo := production.NewRepository(dbpool)
	productionService := production.NewService(productionRepo, auditLogger, idempotencyStore)
	productionHandler := production.NewHandler(logger, productionService, validate)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              dbpool,
		Metrics:           metrics,
		ProductHandler:    productHandler,
		WarehouseHandler:  warehouseHandler,
		ContactHandler:    contactHandler,
		InventoryHandler:  inventoryHandler,
		InvoicingHandler:  invoicingHandler,
		ProductionHandler: productionHandler,
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
