package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olympic-platform/onboarding/internal/config"
	"github.com/olympic-platform/onboarding/internal/infra"
	"github.com/olympic-platform/onboarding/internal/logging"
	"github.com/olympic-platform/onboarding/internal/server"
)

func main() {
	os.Exit(run())
}

// run owns every resource so deferred cleanup happens before the process exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var backends server.Backends
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			return 1
		}
		defer db.Close()
		backends.DB = db
	case config.DriverMongo:
		client, err := infra.NewMongoClient(ctx, cfg.MongoURI, cfg.AppName)
		if err != nil {
			logger.Error("connect mongo", "error", err)
			return 1
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("close mongo", "error", err)
			}
		}()
		backends.Mongo = client
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			return 1
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		backends.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, login rate limiting and idempotency are disabled")
	}

	srv, err := server.New(cfg, backends, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		return 1
	}

	return serve(srv, cfg, logger)
}

func serve(srv *server.Server, cfg config.Config, logger *slog.Logger) int {
	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("server starting", "addr", cfg.Address(), "storage", cfg.StorageDriver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	// also drains queued notifications when Listen failed
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}

	if exitCode == 0 {
		logger.Info("server exited cleanly")
	}
	return exitCode
}
