package render

import (
	"math"

	"github.com/ja38055/TechFataFat/internal/models"
)

// Default duration window for a short, in seconds.
const (
	DefaultMinDuration = 30.0
	DefaultMaxDuration = 60.0
)

// FitMode says how the audio track is reconciled with the target duration.
type FitMode string

const (
	FitExact    FitMode = "exact"    // track already within the window
	FitPad      FitMode = "pad"      // short track: trailing silence up to the target
	FitTruncate FitMode = "truncate" // long track: cut at the target
)

// DurationPolicy clamps track durations into a closed [Min, Max] window.
type DurationPolicy struct {
	Min float64
	Max float64
}

func DefaultDurationPolicy() DurationPolicy {
	return DurationPolicy{Min: DefaultMinDuration, Max: DefaultMaxDuration}
}

// Clamp is total and monotonic: values inside the window are returned
// unchanged, values outside snap to the nearest bound. NaN snaps to Min.
func (p DurationPolicy) Clamp(d float64) float64 {
	if math.IsNaN(d) || d < p.Min {
		return p.Min
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Fit reports how a track of the given duration is fitted to its clamped
// target.
func (p DurationPolicy) Fit(trackDuration float64) FitMode {
	target := p.Clamp(trackDuration)
	switch {
	case trackDuration < target || math.IsNaN(trackDuration):
		return FitPad
	case trackDuration > target:
		return FitTruncate
	default:
		return FitExact
	}
}

// Spec builds the RenderSpec for a visual and track, with the target
// duration clamped from the track's total duration.
func (p DurationPolicy) Spec(visual models.VisualAsset, track models.AudioTrack) models.RenderSpec {
	return models.RenderSpec{
		Visual:         visual,
		Track:          track,
		TargetDuration: p.Clamp(track.TotalDuration),
	}
}
