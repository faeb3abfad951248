package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/parcelops/backend/api/routes"
	"github.com/parcelops/backend/internal/catalog"
	"github.com/parcelops/backend/internal/inventory"
	"github.com/parcelops/backend/internal/orders"
	"github.com/parcelops/backend/internal/sweep"
	"github.com/parcelops/backend/pkg/config"
	"github.com/parcelops/backend/pkg/db"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/metrics"
	"github.com/parcelops/backend/pkg/migrate"
	"github.com/parcelops/backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Logger:  logg,
		Metrics: metrics.NewInventoryMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalogRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	resolver, err := catalog.NewNameResolver(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create product resolver", err)
		os.Exit(1)
	}

	if cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate {
		report, err := catalogService.SeedInitialStock(context.Background())
		if err != nil {
			logg.Error(context.Background(), "failed to seed initial stock", err)
			os.Exit(1)
		}
		logg.Info(logg.WithFields(context.Background(), map[string]any{
			"seeded":  report.ProductsSeeded,
			"skipped": report.ProductsSkipped,
		}), "initial stock seed complete")
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(ordersRepo, dbClient, resolver, inventoryService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	// The sweep endpoints trigger manual runs; the periodic loop lives in the
	// sweep-worker binary.
	var sweepService *sweep.Service
	if !cfg.Sweep.Disabled && cfg.Sweep.TrackingURL != "" {
		lock, err := sweep.NewRedisLock(redisClient, redisClient.LockKey(cfg.Sweep.LockKey), cfg.Sweep.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep lock", err)
			os.Exit(1)
		}
		sweepService, err = sweep.NewService(sweep.ServiceParams{
			Orders:   ordersRepo,
			Delivery: orderService,
			Checker:  sweep.NewHTTPChecker(cfg.Sweep.TrackingURL),
			Lock:     lock,
			Logger:   logg,
			Metrics:  metrics.NewSweepMetrics(prometheus.DefaultRegisterer),
			Interval: cfg.Sweep.Interval,
			PageSize: cfg.Sweep.PageSize,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep service", err)
			os.Exit(1)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, catalogService, inventoryService, orderService, sweepService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
