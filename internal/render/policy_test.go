package render

import (
	"math"
	"testing"

	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	p := DefaultDurationPolicy()

	tests := []struct {
		in, want float64
	}{
		{12, 30},
		{90, 60},
		{30, 30},
		{60, 60},
		{45.25, 45.25},
		{0, 30},
		{-5, 30},
		{math.Inf(1), 60},
		{math.Inf(-1), 30},
		{math.NaN(), 30},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Clamp(tt.in), "Clamp(%v)", tt.in)
	}
}

func TestClampIsMonotonicAndBounded(t *testing.T) {
	p := DurationPolicy{Min: 30, Max: 60}

	prev := math.Inf(-1)
	for d := -10.0; d <= 100; d += 0.5 {
		got := p.Clamp(d)
		assert.GreaterOrEqual(t, got, p.Min)
		assert.LessOrEqual(t, got, p.Max)
		assert.GreaterOrEqual(t, got, prev, "clamp decreased at %v", d)
		if d >= p.Min && d <= p.Max {
			assert.Equal(t, d, got)
		}
		prev = got
	}
}

func TestFit(t *testing.T) {
	p := DefaultDurationPolicy()

	assert.Equal(t, FitPad, p.Fit(12))
	assert.Equal(t, FitTruncate, p.Fit(90))
	assert.Equal(t, FitExact, p.Fit(42))
	assert.Equal(t, FitExact, p.Fit(30))
}

func TestSpecClampsTarget(t *testing.T) {
	p := DefaultDurationPolicy()
	spec := p.Spec(models.VisualAsset{Path: "v.png"}, models.AudioTrack{TotalDuration: 4.5})

	assert.Equal(t, 30.0, spec.TargetDuration)
	assert.Equal(t, 4.5, spec.Track.TotalDuration)
	assert.Equal(t, "v.png", spec.Visual.Path)
}
