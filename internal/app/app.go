// Package app wires the membership engine's components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/semo-membership/internal/clock"
	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/infrastructure/database"
	"github.com/wekeepgrowing/semo-membership/internal/infrastructure/provider"
	"github.com/wekeepgrowing/semo-membership/internal/observability"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
	"github.com/wekeepgrowing/semo-membership/pkg/messaging"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *gorm.DB
	Repos      *database.Repositories
	Provider   provider.PaymentProvider
	Registry   *prometheus.Registry
	Collectors *observability.Collectors
	Aggregator *usecase.MetricsAggregator
	Cache      *usecase.MetricsCache
	Ingestion  *usecase.IngestionService
	// Redis is nil when no address is configured.
	Redis messaging.RedisClient
}

// New connects the database and redis and builds the use cases. Close releases them.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	paymentProvider, err := provider.NewFactory(cfg, logger).GetProvider("")
	if err != nil {
		_ = database.Close(db, logger)
		return nil, fmt.Errorf("failed to create payment provider: %w", err)
	}

	var redisClient messaging.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = database.Close(db, logger)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Cache invalidation fan-out enabled",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("channel", cfg.Redis.Channel))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricCollectors := observability.NewCollectors(registry)

	repos := database.NewRepositories(db, logger)
	clk := clock.New()

	aggregator := usecase.NewMetricsAggregator(
		paymentProvider,
		paymentProvider,
		repos.EventHistory,
		repos.Members,
		cfg.Program,
		cfg.Metrics,
		clk,
		metricCollectors,
		logger.Named("aggregator"),
	)
	cache := usecase.NewMetricsCache(aggregator, cfg.Metrics.CacheTTL, clk, metricCollectors, logger.Named("metrics_cache"))
	ingestion := usecase.NewIngestionService(
		repos.EventHistory,
		repos.Members,
		redisClient,
		cfg.Redis.Channel,
		cache,
		metricCollectors,
		logger.Named("ingestion"),
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Repos:      repos,
		Provider:   paymentProvider,
		Registry:   registry,
		Collectors: metricCollectors,
		Aggregator: aggregator,
		Cache:      cache,
		Ingestion:  ingestion,
		Redis:      redisClient,
	}, nil
}

// Migrate creates or updates the membership tables.
func (a *App) Migrate() error {
	return database.Migrate(a.DB, a.Logger)
}

// PingDatabase is the database health check.
func (a *App) PingDatabase(ctx context.Context) error {
	return database.Ping(ctx, a.DB)
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if err := database.Close(a.DB, a.Logger); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
}
