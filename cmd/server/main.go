package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/glasslink/internal/config"
	"github.com/zhejian/glasslink/internal/events"
	"github.com/zhejian/glasslink/internal/infra"
	"github.com/zhejian/glasslink/internal/observability"
	"github.com/zhejian/glasslink/internal/server"
	"github.com/zhejian/glasslink/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment variables (and .env when present)
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		Environment:      cfg.App.Environment,
		OTLPEndpoint:     cfg.Observability.OTLPEndpoint,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	logger := obs.Logger
	slog.SetDefault(logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	connString := cfg.Database.ConnectionString()
	if cfg.Database.AutoMigrate {
		if err := infra.RunMigrations(connString); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	db, err := infra.NewPostgresPool(ctx, connString, infra.PoolSettings{
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected successfully")

	// Redis is optional; without it caching and rate limiting are off
	var cache *redis.Client
	if cfg.Cache.Enabled {
		cache, err = infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
		if err != nil {
			logger.Warn("cache unavailable, continuing without it", slog.String("error", err.Error()))
			cache = nil
		} else {
			defer cache.Close()
			logger.Info("cache connected successfully")
		}
	}

	var publisher service.ClickPublisher
	if cfg.Broker.URL != "" {
		p, err := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Queue, logger)
		if err != nil {
			logger.Warn("broker unavailable, click events will not be published", slog.String("error", err.Error()))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	srv, err := server.NewServer(cfg, server.Deps{
		DB:        db,
		Cache:     cache,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	obs.Shutdown(shutdownCtx)

	logger.Info("server exited gracefully")
	return nil
}
