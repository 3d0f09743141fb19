// Package scheduler queues one run per channel on the channel's cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const triggerTimeout = 30 * time.Second

type Scheduler struct {
	cron  *cron.Cron
	store db.RunStore
	queue queue.Producer
	log   *zap.Logger
}

// New registers every channel's schedule. A channel with an unparsable
// schedule is a configuration error.
func New(store db.RunStore, q queue.Producer, channels []config.Channel, log *zap.Logger) (*Scheduler, error) {
	log = logger.Named(log, "scheduler")
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))

	s := &Scheduler{
		cron:  cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		store: store,
		queue: q,
		log:   log,
	}

	for _, ch := range channels {
		name := ch.Name
		if _, err := s.cron.AddFunc(ch.Schedule, func() { s.fire(name) }); err != nil {
			return nil, fmt.Errorf("channel %s: invalid schedule %q: %w", ch.Name, ch.Schedule, err)
		}
		log.Info("channel scheduled", zap.String("channel", ch.Name), zap.String("schedule", ch.Schedule))
	}
	return s, nil
}

// Start runs the cron loop until ctx is cancelled, then waits for a trigger
// in progress to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fire(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()
	if _, err := s.Trigger(ctx, channel); err != nil {
		s.log.Error("scheduled run not queued", zap.String("channel", channel), zap.Error(err))
	}
}

// Trigger records a queued run for channel and hands it to the queue. A run
// that cannot be enqueued is marked failed so it does not sit in "queued".
func (s *Scheduler) Trigger(ctx context.Context, channel string) (uuid.UUID, error) {
	run := &models.Run{
		ID:      uuid.New(),
		Channel: channel,
		Stage:   models.StageQueued,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.queue.EnqueueRun(ctx, run.ID, channel, nil); err != nil {
		_ = s.store.FailRun(context.WithoutCancel(ctx), run.ID, models.RunFailure{
			Stage:   models.StageQueued,
			Code:    apperr.Kind(apperr.CodeUnknown),
			Message: "failed to enqueue run",
		})
		return run.ID, fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	s.log.Info("scheduled run queued", zap.String("run_id", run.ID.String()), zap.String("channel", channel))
	return run.ID, nil
}
