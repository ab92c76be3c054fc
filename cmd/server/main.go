package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/semo-membership/internal/adapter/handler/http"
	"github.com/wekeepgrowing/semo-membership/internal/app"
	"github.com/wekeepgrowing/semo-membership/internal/config"
	grpcServer "github.com/wekeepgrowing/semo-membership/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/semo-membership/internal/infrastructure/http"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
	"github.com/wekeepgrowing/semo-membership/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.DefaultZapLogger().Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		logger.DefaultZapLogger().Fatal("Failed to initialize logger", zap.Error(err))
	}
	zapLogger = zapLogger.With(zap.String("service", cfg.Service.Name))
	defer zapLogger.Sync()

	application, err := app.New(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// Run database migrations
	if err := application.Migrate(); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize servers
	httpSrv := httpServer.NewServer(cfg, zapLogger, httpServer.Handlers{
		Metrics: handlers.NewMetricsHandler(application.Cache, zapLogger),
		Webhook: handlers.NewWebhookHandler(application.Provider, application.Ingestion, zapLogger),
		Health: handlers.NewHealthHandler(cfg.Service.Name, map[string]handlers.HealthCheck{
			"database": application.PingDatabase,
		}, zapLogger),
	}, application.Registry)

	var grpcSrv *grpcServer.Server
	if cfg.Server.GRPC.Port != 0 {
		grpcSrv = grpcServer.NewServer(cfg, zapLogger)
		go func() {
			if err := grpcSrv.Start(); err != nil {
				zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
			}
		}()
		go grpcSrv.WatchReadiness(ctx, application.Cache, time.Second)
	}

	go func() {
		if err := httpSrv.Start(); err != nil && ctx.Err() == nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	if application.Redis != nil {
		go func() {
			if err := usecase.ListenForInvalidations(ctx, application.Redis, cfg.Redis.Channel, application.Cache, zapLogger); err != nil && ctx.Err() == nil {
				zapLogger.Error("Lifecycle notification listener stopped", zap.Error(err))
			}
		}()
	}

	// Warm the cache so the first admin request and the health status do not wait.
	go func() {
		if _, err := application.Cache.Get(ctx, false); err != nil {
			zapLogger.Warn("Initial metrics aggregation failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	zapLogger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcSrv != nil {
		if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
		}
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}
