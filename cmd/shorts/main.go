// Command shorts runs the pipeline once for one channel and exits. The exit
// status is 0 when the short was published, 1 when the run failed and 2 for
// usage or configuration errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/app"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/ja38055/TechFataFat/internal/worker"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	channelName := flag.String("channel", "", "channel to run (default: first configured channel)")
	topicFlag := flag.String("topic", "", "use this topic instead of trend discovery")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 2
	}

	zlog, err := logger.Init(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 2
	}
	defer zlog.Sync()

	channel, ok := cfg.Channel(*channelName)
	if !ok {
		zlog.Error("unknown channel", zap.String("channel", *channelName))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, zlog)
	if err != nil {
		zlog.Error("failed to configure app", zap.Error(err))
		return 2
	}
	defer a.Close()

	store, err := a.Store(ctx)
	if err != nil {
		zlog.Error("failed to open run store", zap.Error(err))
		return 2
	}

	// One run goes straight to the worker's handler so it is recorded the
	// same way a queued run would be.
	job := &queue.Job{
		ID:      uuid.New(),
		Type:    queue.JobTypeRun,
		RunID:   uuid.New(),
		Channel: channel.Name,
	}
	if t := strings.TrimSpace(*topicFlag); t != "" {
		job.Topic = &t
	}
	if err := store.CreateRun(ctx, newRun(job)); err != nil {
		zlog.Error("failed to create run", zap.Error(err))
		return 2
	}

	w := worker.New(store, nil, cfg.Channels, a.RunnerFactory(), cfg.RunTimeout, zlog)
	if err := w.Handle(ctx, job); err != nil {
		fmt.Fprintf(os.Stderr, "run %s failed at %s (%s): %v\n",
			job.RunID, apperr.GetStage(err), apperr.Kind(apperr.GetCode(err)), err)
		return 1
	}

	r, err := store.GetRun(context.WithoutCancel(ctx), job.RunID)
	if err == nil && r.RemoteID != nil {
		fmt.Println(*r.RemoteID)
	}
	return 0
}

func newRun(job *queue.Job) *models.Run {
	return &models.Run{
		ID:      job.RunID,
		Channel: job.Channel,
		Topic:   job.Topic,
		Stage:   models.StageQueued,
	}
}
