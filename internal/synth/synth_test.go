package synth

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/mocks"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(lang string, words ...string) models.LanguageRun {
	return models.LanguageRun{Language: lang, Words: words}
}

func TestSynthesizeWritesClip(t *testing.T) {
	dir := t.TempDir()
	tts := &mocks.MockTTS{}
	tts.On("GenerateSpeech", mock.Anything, "5G Technology", "en").
		Return(&services.TTSResponse{AudioData: []byte("mp3"), Format: "mp3"}, nil)
	prober := &mocks.MockProber{}
	prober.On("GetAudioDuration", mock.Anything, mock.Anything).Return(2.75, nil)

	s := New(tts, prober, time.Second, 2, zap.NewNop())
	clip, err := s.Synthesize(context.Background(), 3, run("en", "5G", "Technology"), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, clip.Index)
	assert.Equal(t, "en", clip.Language)
	assert.Equal(t, 2.75, clip.Duration)
	assert.FileExists(t, clip.Path)
	assert.Contains(t, clip.Path, "run_003_en.mp3")

	clip.Release()
	assert.NoFileExists(t, clip.Path)
	tts.AssertExpectations(t)
}

func TestSynthesizeDurationFallbacks(t *testing.T) {
	dir := t.TempDir()
	prober := &mocks.MockProber{}
	prober.On("GetAudioDuration", mock.Anything, mock.Anything).Return(0.0, errors.New("no ffprobe"))

	tts := &mocks.MockTTS{}
	tts.On("GenerateSpeech", mock.Anything, "a b", "en").
		Return(&services.TTSResponse{AudioData: []byte("x"), DurationMs: 1500}, nil)
	tts.On("GenerateSpeech", mock.Anything, "c d", "en").
		Return(&services.TTSResponse{AudioData: []byte("x")}, nil)

	s := New(tts, prober, 0, 1, zap.NewNop())

	clip, err := s.Synthesize(context.Background(), 0, run("en", "a", "b"), dir)
	require.NoError(t, err)
	assert.Equal(t, 1.5, clip.Duration)

	clip, err = s.Synthesize(context.Background(), 1, run("en", "c", "d"), dir)
	require.NoError(t, err)
	assert.InDelta(t, services.EstimateSeconds("c d"), clip.Duration, 1e-9)
}

func TestSynthesizeFailures(t *testing.T) {
	dir := t.TempDir()
	tts := &mocks.MockTTS{}
	tts.On("GenerateSpeech", mock.Anything, "boom", "hi").Return(nil, errors.New("quota exceeded"))
	tts.On("GenerateSpeech", mock.Anything, "empty", "en").Return(&services.TTSResponse{}, nil)

	s := New(tts, nil, 0, 1, zap.NewNop())

	_, err := s.Synthesize(context.Background(), 0, run("hi", "boom"), dir)
	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hi", se.Language)
	assert.Contains(t, se.Error(), "quota exceeded")

	_, err = s.Synthesize(context.Background(), 1, run("en", "empty"), dir)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)

	_, err = s.Synthesize(context.Background(), 2, run("en"), dir)
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "failed runs leave no files")
}

// slowTTS completes runs in reverse order of submission.
type slowTTS struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowTTS) GenerateSpeech(ctx context.Context, text, language string) (*services.TTSResponse, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	delay := time.Duration(10-len(text)) * 5 * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if text == "fail" {
		return nil, errors.New("provider down")
	}
	return &services.TTSResponse{AudioData: []byte(text), DurationMs: 1000 * len(text)}, nil
}

func TestSynthesizeAllPreservesOrder(t *testing.T) {
	tts := &slowTTS{}
	s := New(tts, nil, time.Second, 3, zap.NewNop())

	runs := []models.LanguageRun{
		run("hi", "a"),
		run("en", "bb"),
		run("hi", "fail"),
		run("en", "dddd"),
		run("hi", "eeeee"),
	}
	outcomes := s.SynthesizeAll(context.Background(), runs, t.TempDir())
	require.Len(t, outcomes, len(runs))

	for i, o := range outcomes {
		assert.Equal(t, runs[i], o.Run)
	}

	clips := Clips(outcomes)
	require.Len(t, clips, 4)
	assert.Equal(t, []int{0, 1, 3, 4}, []int{clips[0].Index, clips[1].Index, clips[2].Index, clips[3].Index})
	assert.Equal(t, []float64{1, 2, 4, 5}, []float64{clips[0].Duration, clips[1].Duration, clips[2].Duration, clips[3].Duration})

	failures := Failures(outcomes)
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)

	assert.LessOrEqual(t, tts.peak.Load(), int32(3))

	Release(outcomes)
	for _, c := range clips {
		assert.NoFileExists(t, c.Path)
	}
}

func TestAsError(t *testing.T) {
	assert.NoError(t, AsError(nil))

	err := AsError([]*SynthesisError{{Index: 1, Language: "hi", Err: errors.New("x")}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeSynthesisFailure))
	assert.Contains(t, err.Error(), "run 1 (hi)")
}
