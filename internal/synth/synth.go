// Package synth voices language runs into audio clips.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prober measures the duration of an audio file in seconds.
type Prober interface {
	GetAudioDuration(ctx context.Context, path string) (float64, error)
}

// SynthesisError is the retained failure for one run. It never aborts the
// other runs; the caller decides what to do with it.
type SynthesisError struct {
	Index    int
	Language string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("run %d (%s): %v", e.Index, e.Language, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Outcome pairs a run with either its clip or its failure.
type Outcome struct {
	Run  models.LanguageRun
	Clip models.AudioClip
	Err  *SynthesisError
}

func (o Outcome) OK() bool { return o.Err == nil }

type Synthesizer struct {
	tts         services.TTSService
	prober      Prober
	timeout     time.Duration
	concurrency int
	log         *zap.Logger
}

func New(tts services.TTSService, prober Prober, timeout time.Duration, concurrency int, log *zap.Logger) *Synthesizer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Synthesizer{
		tts:         tts,
		prober:      prober,
		timeout:     timeout,
		concurrency: concurrency,
		log:         logger.Named(log, "synth"),
	}
}

// Synthesize voices one run and writes the audio into dir. Every provider
// problem, including an empty response and a timeout, comes back as a
// *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, index int, run models.LanguageRun, dir string) (models.AudioClip, error) {
	fail := func(err error) (models.AudioClip, error) {
		return models.AudioClip{}, &SynthesisError{Index: index, Language: run.Language, Err: err}
	}

	text := run.Text()
	if text == "" {
		return fail(errors.New("run has no words"))
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.tts.GenerateSpeech(callCtx, text, run.Language)
	if err != nil {
		return fail(err)
	}
	if resp == nil || len(resp.AudioData) == 0 {
		return fail(errors.New("provider returned empty audio"))
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%03d_%s.%s", index, run.Language, format))
	if err := os.WriteFile(path, resp.AudioData, 0o644); err != nil {
		return fail(fmt.Errorf("failed to write clip: %w", err))
	}

	clip := models.AudioClip{
		Index:    index,
		Language: run.Language,
		Path:     path,
		Duration: s.measure(ctx, path, resp, text),
	}

	s.log.Debug("run synthesized",
		zap.Int("index", index),
		zap.String("lang", run.Language),
		zap.Float64("duration", clip.Duration))
	return clip, nil
}

// measure prefers the probed file length, then the provider's figure, then
// the word-rate estimate.
func (s *Synthesizer) measure(ctx context.Context, path string, resp *services.TTSResponse, text string) float64 {
	if s.prober != nil {
		d, err := s.prober.GetAudioDuration(ctx, path)
		if err == nil && d > 0 {
			return d
		}
		s.log.Warn("could not probe clip, using estimate", zap.String("path", path), zap.Error(err))
	}
	if resp.DurationMs > 0 {
		return float64(resp.DurationMs) / 1000
	}
	return services.EstimateSeconds(text)
}

// SynthesizeAll voices every run with bounded concurrency. The result has one
// outcome per run, in run order, whatever order the calls complete in.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, runs []models.LanguageRun, dir string) []Outcome {
	outcomes := make([]Outcome, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, run := range runs {
		i, run := i, run
		outcomes[i].Run = run
		g.Go(func() error {
			clip, err := s.Synthesize(gctx, i, run, dir)
			if err != nil {
				var se *SynthesisError
				errors.As(err, &se)
				outcomes[i].Err = se
				s.log.Warn("run synthesis failed",
					zap.Int("index", i),
					zap.String("lang", run.Language),
					zap.Error(se.Err))
				return nil
			}
			outcomes[i].Clip = clip
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Clips returns the successful clips in run order.
func Clips(outcomes []Outcome) []models.AudioClip {
	return lo.FilterMap(outcomes, func(o Outcome, _ int) (models.AudioClip, bool) {
		return o.Clip, o.OK()
	})
}

// Failures returns the retained failures in run order.
func Failures(outcomes []Outcome) []*SynthesisError {
	return lo.FilterMap(outcomes, func(o Outcome, _ int) (*SynthesisError, bool) {
		return o.Err, !o.OK()
	})
}

// Release removes every clip file produced by the outcomes.
func Release(outcomes []Outcome) {
	for _, o := range outcomes {
		o.Clip.Release()
	}
}

// AsError folds the failures into one stage error. It returns nil when there
// are none.
func AsError(failures []*SynthesisError) error {
	if len(failures) == 0 {
		return nil
	}
	errs := lo.Map(failures, func(f *SynthesisError, _ int) error { return f })
	return apperr.Wrap(apperr.CodeSynthesisFailure,
		fmt.Sprintf("%d language run(s) could not be voiced", len(failures)),
		errors.Join(errs...))
}
