// Package audio joins synthesized clips into the narration track.
package audio

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	narrationFile = "narration.wav"
	trackFile     = "track.wav"
)

// Engine is the subset of the encoder the composer drives.
type Engine interface {
	ConcatAudio(ctx context.Context, inputPaths []string, outputPath string) error
	MixBed(ctx context.Context, narrationPath, bedPath, outputPath string, volume float64) error
}

type Composer struct {
	engine    Engine
	bedVolume float64
	log       *zap.Logger
}

func NewComposer(engine Engine, bedVolume float64, log *zap.Logger) *Composer {
	return &Composer{
		engine:    engine,
		bedVolume: bedVolume,
		log:       logger.Named(log, "audio"),
	}
}

// Compose concatenates clips strictly in the given order into dir and, when
// bedPath names an existing file, mixes the bed underneath. TotalDuration is
// the exact sum of the clip durations; the bed never changes it. A failed bed
// mix falls back to the plain narration.
func (c *Composer) Compose(ctx context.Context, clips []models.AudioClip, bedPath, dir string) (models.AudioTrack, error) {
	if len(clips) == 0 {
		return models.AudioTrack{}, apperr.New(apperr.CodeNoClips, "no clips to compose")
	}

	paths := lo.Map(clips, func(c models.AudioClip, _ int) string { return c.Path })
	narration := filepath.Join(dir, narrationFile)
	if err := c.engine.ConcatAudio(ctx, paths, narration); err != nil {
		os.Remove(narration)
		return models.AudioTrack{}, apperr.Wrap(apperr.CodeCompositionFailure, "failed to concatenate clips", err)
	}

	track := models.AudioTrack{
		Clips:         append([]models.AudioClip(nil), clips...),
		Path:          narration,
		TotalDuration: TotalDuration(clips),
	}

	if bedPath == "" {
		return track, nil
	}
	if _, err := os.Stat(bedPath); err != nil {
		c.log.Warn("background bed unavailable, skipping", zap.String("bed", bedPath), zap.Error(err))
		return track, nil
	}

	mixed := filepath.Join(dir, trackFile)
	if err := c.engine.MixBed(ctx, narration, bedPath, mixed, c.bedVolume); err != nil {
		os.Remove(mixed)
		if ctx.Err() != nil {
			return models.AudioTrack{}, apperr.Wrap(apperr.CodeCancelled, "cancelled while mixing bed", ctx.Err())
		}
		c.log.Warn("background bed mix failed, using narration only", zap.Error(err))
		return track, nil
	}

	track.Path = mixed
	track.BedMixed = true
	return track, nil
}

// TotalDuration sums clip durations in order.
func TotalDuration(clips []models.AudioClip) float64 {
	return lo.SumBy(clips, func(c models.AudioClip) float64 { return c.Duration })
}
