package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	httpapi "noesis-backend/interfaces/http"
	"noesis-backend/internal/app"
	"noesis-backend/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	limitsPath := flag.String("limits", "limits.yaml", "path to the watched limits file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire container", zap.Error(err))
	}
	defer container.Close()

	// Unwind anything a previous run left half-done before taking traffic.
	if err := container.Recover(ctx); err != nil {
		logger.Fatal("crash recovery failed", zap.Error(err))
	}

	watcher, err := config.NewWatcher(*limitsPath, logger)
	if err != nil {
		logger.Warn("limits watcher unavailable, using defaults", zap.Error(err))
		watcher = nil
	} else {
		defer watcher.Stop()
		container.PlanService.SetMaxInFlight(watcher.Limits().MaxConcurrentAsyncPlans)
		watcher.OnChange(func(limits config.Limits) {
			container.PlanService.SetMaxInFlight(limits.MaxConcurrentAsyncPlans)
		})
	}

	var limits func() config.Limits
	if watcher != nil {
		limits = watcher.Limits
	}
	handler := httpapi.NewPlanHandler(
		container.PlanService,
		container.Registry,
		container.Gateway,
		limits,
		logger,
	)
	router := httpapi.NewRouter(handler, container.Metrics.Handler(), logger)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		logger.Info("coordinator listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
