package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/api"
	"equipment-service-backend/internal/db"
	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/notification"
	"equipment-service-backend/internal/projection"
	"equipment-service-backend/internal/store"
)

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	pushEnabled := cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != ""

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	eng := engine.New(appStore, cfg, logger.Named("engine"))
	projector := projection.NewProjector(appStore, eng.Policy(), eng.Roster(), nil)

	if pushEnabled {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions, logger.Named("push"))
		pool.Start(ctx)
		scanner := notification.NewScanner(cfg.Scanner, projector, pool, logger.Named("scanner"))
		go scanner.Run(ctx)
	} else {
		logger.Warn("VAPID keys are not configured, deadline alerts are disabled")
	}

	handler := api.NewHandler(eng, projector, appStore, &webpushOptions, logger.Named("api"))
	router := api.NewRouter(handler, cfg.Server, logger.Named("http"))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
