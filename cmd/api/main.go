package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ja38055/TechFataFat/internal/api"
	"github.com/ja38055/TechFataFat/internal/app"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/worker"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.Init(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("starting TechFatafat API")

	a, err := app.New(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to configure app", zap.Error(err))
	}
	defer a.Close()

	store, err := a.Store(context.Background())
	if err != nil {
		zlog.Fatal("failed to open run store", zap.Error(err))
	}

	q, err := a.Queue()
	if err != nil {
		zlog.Fatal("failed to connect to queue", zap.Error(err))
	}
	if cfg.RedisURL == "" && !cfg.WorkerEnabled {
		zlog.Warn("in-process queue with WORKER_ENABLED=false: queued runs will never execute")
	}

	// Create API handler
	handler := api.NewHandler(store, q, cfg.Channels, zlog)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		zlog.Info("API key authentication enabled")
	} else {
		zlog.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start worker if enabled
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		w := worker.New(store, q, cfg.Channels, a.RunnerFactory(), cfg.RunTimeout, zlog)
		go func() {
			defer close(workerDone)
			w.Start(workerCtx, cfg.MaxConcurrentJobs)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		zlog.Info("API server listening", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	// In-flight runs are cancelled and record their failure before exit.
	workerCancel()
	select {
	case <-workerDone:
	case <-ctx.Done():
		zlog.Warn("worker did not stop before the shutdown deadline")
	}

	zlog.Info("server exited")
}
