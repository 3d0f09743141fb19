// Package worker pulls queued runs and executes them through the pipeline,
// recording every stage in the run store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/pipeline"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const dequeueTimeout = 5 * time.Second

// Runner executes one run. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

var _ Runner = (*pipeline.Pipeline)(nil)

// RunnerFactory builds the runner for a channel, reporting stages to obs.
type RunnerFactory func(channel config.Channel, obs pipeline.Observer) (Runner, error)

type Worker struct {
	store    db.RunStore
	queue    queue.Consumer
	channels map[string]config.Channel
	build    RunnerFactory
	timeout  time.Duration
	log      *zap.Logger
}

// New returns a worker. timeout bounds a single run; zero means no limit.
func New(store db.RunStore, q queue.Consumer, channels []config.Channel, build RunnerFactory, timeout time.Duration, log *zap.Logger) *Worker {
	return &Worker{
		store:    store,
		queue:    q,
		channels: lo.KeyBy(channels, func(ch config.Channel) string { return ch.Name }),
		build:    build,
		timeout:  timeout,
		log:      logger.Named(log, "worker"),
	}
}

// Start runs concurrency consumers until ctx is cancelled, then waits for
// in-flight runs to finish their cleanup.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("worker started", zap.Int("concurrency", concurrency))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx)
		}()
	}

	<-ctx.Done()
	w.log.Info("worker shutting down")
	wg.Wait()
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queue.QueueRuns, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("failed to dequeue", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue // No job available, retry
		}

		if err := w.Handle(ctx, job); err != nil {
			w.log.Warn("run failed", zap.String("run_id", job.RunID.String()), zap.Error(err))
		}
	}
}

// Handle executes one job and records its outcome. The returned error is the
// run's failure, already persisted.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	log := w.log.With(zap.String("run_id", job.RunID.String()), zap.String("channel", job.Channel))
	log.Info("processing run", zap.String("job_id", job.ID.String()))

	// Outcomes are recorded even when the run itself was cancelled.
	recordCtx := context.WithoutCancel(ctx)

	channel, ok := w.channels[job.Channel]
	if !ok {
		err := apperr.New(apperr.CodeInvalidParams, fmt.Sprintf("unknown channel %q", job.Channel)).WithStage(string(models.StageQueued))
		w.recordFailure(recordCtx, job.RunID, err, log)
		return err
	}

	runner, err := w.build(channel, w.observer(log))
	if err != nil {
		appErr := apperr.Wrap(apperr.CodeUnknown, "failed to build pipeline", err).WithStage(string(models.StageQueued))
		w.recordFailure(recordCtx, job.RunID, appErr, log)
		return appErr
	}

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := runner.Run(runCtx, pipeline.Request{RunID: job.RunID, Topic: job.Topic})
	if err != nil {
		w.recordFailure(recordCtx, job.RunID, err, log)
		return err
	}

	if err := w.store.CompleteRun(recordCtx, job.RunID, Outcome(res)); err != nil {
		log.Error("failed to record completed run", zap.Error(err))
	}
	log.Info("run completed", zap.String("remote_id", res.RemoteID))
	return nil
}

func (w *Worker) observer(log *zap.Logger) pipeline.Observer {
	return pipeline.ObserverFunc(func(ctx context.Context, runID uuid.UUID, stage models.Stage) {
		if stage == models.StageFailed || stage == models.StageDone {
			return // recorded with the outcome
		}
		if err := w.store.UpdateRunStage(context.WithoutCancel(ctx), runID, stage); err != nil {
			log.Warn("failed to record stage", zap.String("stage", string(stage)), zap.Error(err))
		}
	})
}

func (w *Worker) recordFailure(ctx context.Context, runID uuid.UUID, err error, log *zap.Logger) {
	if storeErr := w.store.FailRun(ctx, runID, Failure(err)); storeErr != nil {
		log.Error("failed to record run failure", zap.Error(storeErr))
	}
}

// Failure converts a pipeline error into a run record failure.
func Failure(err error) models.RunFailure {
	stage := models.Stage(apperr.GetStage(err))
	if !stage.Valid() {
		stage = models.StageFailed
	}
	return models.RunFailure{
		Stage:   stage,
		Code:    apperr.Kind(apperr.GetCode(err)),
		Message: err.Error(),
	}
}

// Outcome converts a pipeline result into a run record outcome.
func Outcome(res *pipeline.Result) models.RunOutcome {
	return models.RunOutcome{
		Topic:       res.Topic.Text,
		TopicSource: res.Topic.Source,
		RemoteID:    res.RemoteID,
		Duration:    res.Duration,
		Metadata: models.JSONB{
			"title":         res.Metadata.Title,
			"description":   res.Metadata.Description,
			"tags":          res.Metadata.Tags,
			"category_id":   res.Metadata.CategoryID,
			"visibility":    res.Metadata.Visibility,
			"visual_source": string(res.VisualSrc),
			"silent_runs":   res.SilentRuns,
			"bed_mixed":     res.BedMixed,
			"captioned":     res.Captioned,
		},
	}
}
