package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/config"
	dbRedis "github.com/kailas-cloud/docdex/internal/db/redis"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
	"github.com/kailas-cloud/docdex/internal/metrics"
	boltrepo "github.com/kailas-cloud/docdex/internal/repository/bolt"
	documentrepo "github.com/kailas-cloud/docdex/internal/repository/document"
	chiTransport "github.com/kailas-cloud/docdex/internal/transport/chi"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	"github.com/kailas-cloud/docdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docdex gateway",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("kinds", len(cfg.Kinds)),
	)

	ctx := context.Background()
	client, pinger, closeFn, err := openEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open document engine", zap.Error(err))
	}
	defer closeFn()
	logger.Info("Connected to database")

	metrics.Register(prometheus.DefaultRegisterer)

	reg, err := docdex.NewRegistry(
		docdex.WithClient(client),
		docdex.WithLogger(logger),
		docdex.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logger.Fatal("Failed to create registry", zap.Error(err))
	}
	if err := defineKinds(reg, cfg.Kinds, logger); err != nil {
		logger.Fatal("Invalid kind definitions", zap.Error(err))
	}
	if err := reg.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure search indexes", zap.Error(err))
	}

	healthSvc := healthuc.New(pinger)
	server := chiTransport.NewServer(reg, healthSvc, logger).
		WithPagination(cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openEngine creates the docdex client selected by database.driver.
func openEngine(
	ctx context.Context, cfg config.Config, logger *zap.Logger,
) (docdex.Client, healthuc.Pinger, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("database not ready: %w", err)
		}
		repo := documentrepo.New(store,
			documentrepo.WithKeyPrefix(cfg.Storage.KeyPrefix),
			documentrepo.WithRefreshTimeout(time.Duration(cfg.Search.RefreshTimeoutSec)*time.Second),
			documentrepo.WithLogger(logger),
		)
		return repo, store, store.Close, nil

	case config.DriverBolt:
		repo, err := boltrepo.Open(cfg.Database.BoltPath, boltrepo.Options{
			Timeout: time.Duration(cfg.Database.ReadinessTimeout) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open bolt database: %w", err)
		}
		closeFn := func() {
			if err := repo.Close(); err != nil {
				logger.Error("Error closing bolt database", zap.Error(err))
			}
		}
		return repo, repo, closeFn, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}
