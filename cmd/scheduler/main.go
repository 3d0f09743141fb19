package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ja38055/TechFataFat/internal/app"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.Init(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// The scheduler only enqueues; runs execute in the API's embedded worker
	// or a separate worker process, so a shared queue is required.
	if cfg.RedisURL == "" {
		zlog.Fatal("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to configure app", zap.Error(err))
	}
	defer a.Close()

	store, err := a.Store(ctx)
	if err != nil {
		zlog.Fatal("failed to open run store", zap.Error(err))
	}
	q, err := a.Queue()
	if err != nil {
		zlog.Fatal("failed to connect to queue", zap.Error(err))
	}

	s, err := scheduler.New(store, q, cfg.Channels, zlog)
	if err != nil {
		zlog.Fatal("failed to schedule channels", zap.Error(err))
	}

	zlog.Info("scheduler started", zap.Int("channels", len(cfg.Channels)))
	s.Start(ctx)
}
