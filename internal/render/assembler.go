package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"go.uber.org/zap"
)

// Encoder renders a still image and an audio track into a video file.
type Encoder interface {
	RenderStill(ctx context.Context, job services.StillRenderJob) error
}

// Assembler turns a RenderSpec into a media artifact. Encoder failures are
// returned as encoding failures and never retried.
type Assembler struct {
	enc     Encoder
	policy  DurationPolicy
	timeout time.Duration
	log     *zap.Logger
}

func NewAssembler(enc Encoder, policy DurationPolicy, timeout time.Duration, log *zap.Logger) *Assembler {
	return &Assembler{
		enc:     enc,
		policy:  policy,
		timeout: timeout,
		log:     logger.Named(log, "assembler"),
	}
}

// Assemble renders spec to outputPath. The still visual is held for the
// target duration; a shorter track is padded with silence and a longer one
// is cut at the target. A partially written output is removed on failure.
func (a *Assembler) Assemble(ctx context.Context, spec models.RenderSpec, outputPath string) (models.Artifact, error) {
	if spec.Visual.Path == "" {
		return models.Artifact{}, apperr.New(apperr.CodeEncodingFailure, "render spec has no visual")
	}
	if spec.Track.Path == "" {
		return models.Artifact{}, apperr.New(apperr.CodeEncodingFailure, "render spec has no audio track")
	}

	// The spec should already be clamped; clamping again keeps the output
	// inside the window even for hand-built specs.
	target := a.policy.Clamp(spec.TargetDuration)
	fit := a.policy.Fit(spec.Track.TotalDuration)

	job := services.StillRenderJob{
		ImagePath:    spec.Visual.Path,
		AudioPath:    spec.Track.Path,
		SubtitlePath: spec.CaptionsPath,
		Duration:     target,
		PadAudio:     spec.Track.TotalDuration < target,
		OutputPath:   outputPath,
	}

	a.log.Info("assembling short",
		zap.Float64("track_duration", spec.Track.TotalDuration),
		zap.Float64("target_duration", target),
		zap.String("fit", string(fit)),
		zap.String("visual_source", string(spec.Visual.Source)))

	encodeCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.enc.RenderStill(encodeCtx, job); err != nil {
		os.Remove(outputPath)
		detail := ""
		var cmdErr *services.CommandError
		if errors.As(err, &cmdErr) {
			detail = cmdErr.Stderr
		}
		return models.Artifact{}, apperr.WrapWithDetail(apperr.CodeEncodingFailure, "failed to encode short", detail, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		if err == nil {
			err = fmt.Errorf("encoder produced an empty file")
		}
		return models.Artifact{}, apperr.Wrap(apperr.CodeEncodingFailure, "encoder output missing", err)
	}

	return models.Artifact{
		Path:     outputPath,
		Duration: target,
	}, nil
}
