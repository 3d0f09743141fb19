// Package pipeline runs one short from topic selection to publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/render"
	"github.com/ja38055/TechFataFat/internal/synth"
	"github.com/ja38055/TechFataFat/internal/topic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Partial synthesis failure policies.
const (
	PolicyAbort   = config.PolicyAbort
	PolicySilence = config.PolicySilence
)

const artifactFile = "short.mp4"

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type TopicSelector interface {
	Select(ctx context.Context) models.Topic
}

type ScriptComposer interface {
	Compose(ctx context.Context, topic models.Topic) models.Script
}

type Segmenter interface {
	Segment(script string) []models.LanguageRun
}

type SpeechSynthesizer interface {
	SynthesizeAll(ctx context.Context, runs []models.LanguageRun, dir string) []synth.Outcome
}

type SilenceGenerator interface {
	GenerateSilence(ctx context.Context, seconds float64, outputPath string) error
}

type AudioComposer interface {
	Compose(ctx context.Context, clips []models.AudioClip, bedPath, dir string) (models.AudioTrack, error)
}

type VisualComposer interface {
	Compose(ctx context.Context, topic models.Topic, dir string) models.VisualAsset
}

type MediaAssembler interface {
	Assemble(ctx context.Context, spec models.RenderSpec, outputPath string) (models.Artifact, error)
}

// PublishSink accepts a finished short and returns the remote identifier.
type PublishSink interface {
	Name() string
	Publish(ctx context.Context, artifact models.Artifact) (string, error)
}

// Observer is told about every stage a run enters.
type Observer interface {
	StageChanged(ctx context.Context, runID uuid.UUID, stage models.Stage)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, runID uuid.UUID, stage models.Stage)

func (f ObserverFunc) StageChanged(ctx context.Context, runID uuid.UUID, stage models.Stage) {
	f(ctx, runID, stage)
}

type Deps struct {
	Topics    TopicSelector
	Scripts   ScriptComposer
	Segmenter Segmenter
	Synth     SpeechSynthesizer
	Silence   SilenceGenerator // required only for the silence policy
	Audio     AudioComposer
	Visual    VisualComposer
	Assembler MediaAssembler
	Sink      PublishSink
	Observer  Observer // optional
}

type Options struct {
	Channel        config.Channel
	PartialFailure string
	BedPath        string
	Policy         render.DurationPolicy
	Captions       bool
	CategoryID     string
	Visibility     string
	WorkDir        string
	// RetainDir receives the artifact when publishing fails, for a manual
	// retry. Empty means the artifact is discarded with the workspace.
	RetainDir string
}

type Pipeline struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options, log *zap.Logger) *Pipeline {
	if opts.PartialFailure == "" {
		opts.PartialFailure = PolicyAbort
	}
	if opts.Policy == (render.DurationPolicy{}) {
		opts.Policy = render.DefaultDurationPolicy()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		log:  logger.Named(log, "pipeline").With(zap.String("channel", opts.Channel.Name)),
	}
}

// Request starts one run. A nil Topic means trend discovery.
type Request struct {
	RunID uuid.UUID
	Topic *string
}

// Result describes a published short. The local artifact no longer exists
// once Run returns.
type Result struct {
	RunID      uuid.UUID
	Topic      models.Topic
	Duration   float64
	Metadata   models.Metadata
	RemoteID   string
	VisualSrc  models.VisualSource
	SilentRuns int
	BedMixed   bool
	Captioned  bool
}

// Run executes the whole pipeline. Every failure is an *apperr.AppError
// tagged with the stage that failed. The run workspace is removed on every
// path, including cancellation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	runID := req.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	log := p.log.With(zap.String("run_id", runID.String()))

	workspace := filepath.Join(p.opts.WorkDir, runID.String())
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to create run workspace", err).WithStage(string(models.StageQueued))
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("failed to remove workspace", zap.String("dir", workspace), zap.Error(err))
		}
	}()

	res := &Result{RunID: runID}

	// Topic
	p.enter(ctx, runID, models.StageSelectingTopic, log)
	if req.Topic != nil && strings.TrimSpace(*req.Topic) != "" {
		res.Topic = topic.Manual(*req.Topic)
	} else {
		res.Topic = p.deps.Topics.Select(ctx)
	}
	log = log.With(zap.String("topic", res.Topic.Text))
	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, runID, models.StageSelectingTopic, err)
	}

	// Script
	p.enter(ctx, runID, models.StageComposingScript, log)
	script := p.deps.Scripts.Compose(ctx, res.Topic)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, runID, models.StageComposingScript, err)
	}

	// Audio, with the visual composed alongside. The visual never fails; the
	// group only exists to join it before the workspace is removed.
	p.enter(ctx, runID, models.StageSynthesizingAudio, log)

	visualCtx, cancelVisual := context.WithCancel(ctx)
	var visual models.VisualAsset
	var g errgroup.Group
	g.Go(func() error {
		visual = p.deps.Visual.Compose(visualCtx, res.Topic, workspace)
		return nil
	})
	defer func() {
		cancelVisual()
		_ = g.Wait()
	}()

	audio, err := p.composeAudio(ctx, script, workspace, log)
	if err != nil {
		return nil, p.fail(ctx, runID, models.StageSynthesizingAudio, err)
	}
	track := audio.track
	res.SilentRuns = audio.silent
	res.BedMixed = track.BedMixed

	captions := ""
	if p.opts.Captions {
		captions = p.writeCaptions(audio, workspace, log)
		res.Captioned = captions != ""
	}

	// Visual
	p.enter(ctx, runID, models.StageComposingVisual, log)
	_ = g.Wait()
	res.VisualSrc = visual.Source
	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, runID, models.StageComposingVisual, err)
	}

	// Assembly
	p.enter(ctx, runID, models.StageAssembling, log)
	spec := p.opts.Policy.Spec(visual, track)
	spec.CaptionsPath = captions

	artifact, err := p.deps.Assembler.Assemble(ctx, spec, filepath.Join(workspace, artifactFile))
	if err != nil {
		return nil, p.fail(ctx, runID, models.StageAssembling, err)
	}
	artifact.Topic = res.Topic.Text
	artifact.Metadata = BuildMetadata(p.opts.Channel, res.Topic, p.opts.CategoryID, p.opts.Visibility)
	res.Duration = artifact.Duration
	res.Metadata = artifact.Metadata

	// Publish
	p.enter(ctx, runID, models.StagePublishing, log)
	remoteID, err := p.deps.Sink.Publish(ctx, artifact)
	if err != nil {
		p.retain(runID, artifact, log)
		return nil, p.fail(ctx, runID, models.StagePublishing, apperr.Wrap(apperr.CodePublishFailure, "publish to "+p.deps.Sink.Name()+" failed", err))
	}
	res.RemoteID = remoteID

	p.enter(ctx, runID, models.StageDone, log)
	log.Info("short published",
		zap.String("sink", p.deps.Sink.Name()),
		zap.String("remote_id", remoteID),
		zap.Float64("duration", res.Duration))
	return res, nil
}

type composedAudio struct {
	track  models.AudioTrack
	runs   []models.LanguageRun
	silent int
}

// composeAudio segments, voices and joins the script.
func (p *Pipeline) composeAudio(ctx context.Context, script models.Script, dir string, log *zap.Logger) (composedAudio, error) {
	runs := p.deps.Segmenter.Segment(script.Text)
	if len(runs) == 0 {
		return composedAudio{}, apperr.New(apperr.CodeNoClips, "script produced no language runs")
	}
	log.Info("script segmented", zap.Int("runs", len(runs)), zap.Int("words", len(script.Words())))

	outcomes := p.deps.Synth.SynthesizeAll(ctx, runs, dir)
	defer synth.Release(outcomes)

	if err := ctx.Err(); err != nil {
		return composedAudio{}, err
	}

	failures := synth.Failures(outcomes)
	if len(failures) == len(outcomes) {
		return composedAudio{}, apperr.Wrap(apperr.CodeCompositionFailure,
			"every language run failed to synthesize", synth.AsError(failures))
	}

	clips := synth.Clips(outcomes)
	silent := 0
	if len(failures) > 0 {
		if p.opts.PartialFailure != PolicySilence {
			return composedAudio{}, synth.AsError(failures)
		}
		var err error
		clips, err = p.fillWithSilence(ctx, outcomes, dir, log)
		defer releaseClips(clips)
		if err != nil {
			return composedAudio{}, err
		}
		silent = len(failures)
	}

	track, err := p.deps.Audio.Compose(ctx, clips, p.opts.BedPath, dir)
	if err != nil {
		return composedAudio{}, err
	}
	log.Info("audio composed",
		zap.Int("clips", len(track.Clips)),
		zap.Int("silent_runs", silent),
		zap.Float64("total_duration", track.TotalDuration),
		zap.Bool("bed", track.BedMixed))
	return composedAudio{track: track, runs: runs, silent: silent}, nil
}

// fillWithSilence returns the clips in run order with each failed run
// replaced by silence of its estimated spoken length.
func (p *Pipeline) fillWithSilence(ctx context.Context, outcomes []synth.Outcome, dir string, log *zap.Logger) ([]models.AudioClip, error) {
	if p.deps.Silence == nil {
		return nil, apperr.New(apperr.CodeSynthesisFailure, "silence policy configured without a silence generator")
	}
	clips := make([]models.AudioClip, 0, len(outcomes))
	for i, o := range outcomes {
		if o.OK() {
			clips = append(clips, o.Clip)
			continue
		}
		seconds := estimateRunSeconds(o.Run)
		path := filepath.Join(dir, fmt.Sprintf("run_%03d_silence.wav", i))
		if err := p.deps.Silence.GenerateSilence(ctx, seconds, path); err != nil {
			return clips, apperr.Wrap(apperr.CodeSynthesisFailure, "failed to generate silence for a failed run", errors.Join(o.Err, err))
		}
		log.Warn("run replaced with silence",
			zap.Int("index", i),
			zap.String("lang", o.Run.Language),
			zap.Float64("seconds", seconds),
			zap.Error(o.Err))
		clips = append(clips, models.AudioClip{Index: i, Language: o.Run.Language, Duration: seconds, Path: path, Silent: true})
	}
	return clips, nil
}

// fail tags err with the stage. Cancellation of the run context wins over
// whatever error the stage produced.
func (p *Pipeline) fail(ctx context.Context, runID uuid.UUID, stage models.Stage, err error) error {
	var appErr *apperr.AppError
	switch {
	case ctx.Err() != nil:
		appErr = apperr.Wrap(apperr.CodeCancelled, "run cancelled", ctx.Err())
	case errors.As(err, &appErr):
	default:
		appErr = apperr.Wrap(apperr.CodeUnknown, "stage failed", err)
	}
	appErr = appErr.WithStage(string(stage))

	p.log.Error("run failed",
		zap.String("run_id", runID.String()),
		zap.String("stage", string(stage)),
		zap.String("kind", apperr.Kind(appErr.Code)),
		zap.Error(appErr))
	if p.deps.Observer != nil {
		p.deps.Observer.StageChanged(context.WithoutCancel(ctx), runID, models.StageFailed)
	}
	return appErr
}

func (p *Pipeline) enter(ctx context.Context, runID uuid.UUID, stage models.Stage, log *zap.Logger) {
	log.Info("stage", zap.String("stage", string(stage)))
	if p.deps.Observer != nil {
		p.deps.Observer.StageChanged(ctx, runID, stage)
	}
}

func releaseClips(clips []models.AudioClip) {
	for _, c := range clips {
		c.Release()
	}
}
