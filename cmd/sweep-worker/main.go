package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parcelops/backend/internal/catalog"
	"github.com/parcelops/backend/internal/inventory"
	"github.com/parcelops/backend/internal/orders"
	"github.com/parcelops/backend/internal/sweep"
	"github.com/parcelops/backend/pkg/config"
	"github.com/parcelops/backend/pkg/db"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/metrics"
	"github.com/parcelops/backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Sweep.Disabled {
		logg.Info(context.Background(), "sweep disabled by config; exiting")
		return
	}
	if cfg.Sweep.TrackingURL == "" {
		logg.Error(context.Background(), "missing tracking endpoint", errors.New("PARCELOPS_SWEEP_TRACKING_URL is required"))
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:   inventory.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Logger: logg,
	})
	fatalOn(logg, "inventory service", err)

	resolver, err := catalog.NewNameResolver(catalog.NewRepository(dbClient.DB()))
	fatalOn(logg, "product resolver", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(ordersRepo, dbClient, resolver, inventoryService, logg)
	fatalOn(logg, "order service", err)

	lock, err := sweep.NewRedisLock(redisClient, redisClient.LockKey(cfg.Sweep.LockKey), cfg.Sweep.LockTTL)
	fatalOn(logg, "sweep lock", err)

	sweepService, err := sweep.NewService(sweep.ServiceParams{
		Orders:   ordersRepo,
		Delivery: orderService,
		Checker:  sweep.NewHTTPChecker(cfg.Sweep.TrackingURL),
		Lock:     lock,
		Logger:   logg,
		Metrics:  metrics.NewSweepMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweep.Interval,
		PageSize: cfg.Sweep.PageSize,
	})
	fatalOn(logg, "sweep service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg.Info(logg.WithField(ctx, "interval", cfg.Sweep.Interval.String()), "starting sweep worker")
	if err := sweepService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func fatalOn(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
