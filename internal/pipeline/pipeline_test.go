package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/audio"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/mocks"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/render"
	"github.com/ja38055/TechFataFat/internal/segment"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/ja38055/TechFataFat/internal/synth"
	"github.com/ja38055/TechFataFat/internal/visual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeTopics struct{ topic models.Topic }

func (f fakeTopics) Select(context.Context) models.Topic { return f.topic }

type fakeScripts struct{ text string }

func (f fakeScripts) Compose(_ context.Context, topic models.Topic) models.Script {
	return models.Script{Topic: topic.Text, Text: f.text}
}

// fakeTTS fails every language in fail. When cancel is set it cancels the
// run instead of answering.
type fakeTTS struct {
	fail   map[string]bool
	cancel context.CancelFunc
}

func (f *fakeTTS) GenerateSpeech(ctx context.Context, text, language string) (*services.TTSResponse, error) {
	if f.cancel != nil {
		f.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.fail[language] {
		return nil, errors.New(language + " voice unavailable")
	}
	return &services.TTSResponse{AudioData: []byte("audio:" + text), Format: "mp3"}, nil
}

type fixedProber struct{ seconds float64 }

func (p fixedProber) GetAudioDuration(context.Context, string) (float64, error) {
	return p.seconds, nil
}

type fakeSilence struct{ requested []float64 }

func (f *fakeSilence) GenerateSilence(_ context.Context, seconds float64, outputPath string) error {
	f.requested = append(f.requested, seconds)
	return os.WriteFile(outputPath, []byte("silence"), 0o644)
}

type fakeEngine struct{ inputs []string }

func (f *fakeEngine) ConcatAudio(_ context.Context, inputPaths []string, outputPath string) error {
	f.inputs = inputPaths
	return os.WriteFile(outputPath, []byte("narration"), 0o644)
}

func (f *fakeEngine) MixBed(context.Context, string, string, string, float64) error {
	return errors.New("no bed in tests")
}

type fakeVisual struct{ source models.VisualSource }

func (f fakeVisual) Compose(_ context.Context, _ models.Topic, dir string) models.VisualAsset {
	path := filepath.Join(dir, "visual.png")
	_ = os.WriteFile(path, []byte("png"), 0o644)
	return models.VisualAsset{Path: path, Width: 1080, Height: 1920, Source: f.source}
}

type fakeAssembler struct {
	spec       models.RenderSpec
	captionsOK bool
	visualOK   bool
	err        error
}

func (f *fakeAssembler) Assemble(_ context.Context, spec models.RenderSpec, outputPath string) (models.Artifact, error) {
	f.spec = spec
	if spec.Visual.Path != "" {
		_, err := os.Stat(spec.Visual.Path)
		f.visualOK = err == nil
	}
	if spec.CaptionsPath != "" {
		_, err := os.Stat(spec.CaptionsPath)
		f.captionsOK = err == nil
	}
	if f.err != nil {
		return models.Artifact{}, f.err
	}
	if err := os.WriteFile(outputPath, []byte("mp4"), 0o644); err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{Path: outputPath, Duration: spec.TargetDuration}, nil
}

type fakeSink struct {
	err       error
	published []models.Artifact
	existed   bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Publish(_ context.Context, artifact models.Artifact) (string, error) {
	_, err := os.Stat(artifact.Path)
	f.existed = err == nil
	f.published = append(f.published, artifact)
	if f.err != nil {
		return "", f.err
	}
	return "remote-123", nil
}

type harness struct {
	tts       *fakeTTS
	silence   *fakeSilence
	engine    *fakeEngine
	assembler *fakeAssembler
	sink      *fakeSink
	stages    []models.Stage
	opts      Options
	script    string
	visual    models.VisualSource
	composer  VisualComposer
}

func newHarness(t *testing.T, script string) *harness {
	return &harness{
		tts:       &fakeTTS{fail: map[string]bool{}},
		silence:   &fakeSilence{},
		engine:    &fakeEngine{},
		assembler: &fakeAssembler{},
		sink:      &fakeSink{},
		script:    script,
		visual:    models.VisualSourceProvider,
		opts: Options{
			Channel: config.Channel{
				Name:              "TechFatafat",
				PrimaryLanguage:   "hi",
				SecondaryLanguage: "en",
				Tags:              []string{"tech", "shorts"},
			},
			Policy:     render.DefaultDurationPolicy(),
			CategoryID: "28",
			Visibility: "public",
			WorkDir:    t.TempDir(),
		},
	}
}

func (h *harness) pipeline() *Pipeline {
	log := zap.NewNop()
	var composer VisualComposer = fakeVisual{source: h.visual}
	if h.composer != nil {
		composer = h.composer
	}
	return New(Deps{
		Topics:    fakeTopics{topic: models.Topic{Text: "AI Chips", Source: models.TopicSourceTrending}},
		Scripts:   fakeScripts{text: h.script},
		Segmenter: segment.NewTwoLanguage("hi", "en"),
		Synth:     synth.New(h.tts, fixedProber{seconds: 4}, 0, 2, log),
		Silence:   h.silence,
		Audio:     audio.NewComposer(h.engine, 0.1, log),
		Visual:    composer,
		Assembler: h.assembler,
		Sink:      h.sink,
		Observer: ObserverFunc(func(_ context.Context, _ uuid.UUID, stage models.Stage) {
			h.stages = append(h.stages, stage)
		}),
	}, h.opts, log)
}

func assertWorkspaceEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run workspace should be removed")
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunEnglishOnly(t *testing.T) {
	h := newHarness(t, "Hello TechFatafat viewers! Today's topic is AI Chips.")
	res, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, "remote-123", res.RemoteID)
	assert.Equal(t, "AI Chips", res.Topic.Text)
	assert.Equal(t, 30.0, res.Duration, "a 4s track is padded up to the minimum")
	assert.Zero(t, res.SilentRuns)

	require.Len(t, h.assembler.spec.Track.Clips, 1)
	assert.Equal(t, "en", h.assembler.spec.Track.Clips[0].Language)
	assert.Equal(t, 4.0, h.assembler.spec.Track.TotalDuration)
	assert.Equal(t, 30.0, h.assembler.spec.TargetDuration)

	require.Len(t, h.sink.published, 1)
	assert.True(t, h.sink.existed, "artifact must exist while publishing")
	meta := h.sink.published[0].Metadata
	assert.Equal(t, "AI Chips #Shorts", meta.Title)
	assert.Equal(t, "28", meta.CategoryID)
	assert.Equal(t, "public", meta.Visibility)
	assert.Equal(t, []string{"tech", "shorts", "ai", "chips"}, meta.Tags)

	assert.Equal(t, models.Stages, h.stages)
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunMixedLanguagesKeepsOrder(t *testing.T) {
	h := newHarness(t, "नमस्ते दोस्तों Today AI Chips बहुत तेज़")
	_, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)

	clips := h.assembler.spec.Track.Clips
	require.Len(t, clips, 3)
	assert.Equal(t, []string{"hi", "en", "hi"}, []string{clips[0].Language, clips[1].Language, clips[2].Language})
	assert.Equal(t, 12.0, h.assembler.spec.Track.TotalDuration)
	require.Len(t, h.engine.inputs, 3)
	assert.Contains(t, h.engine.inputs[0], "run_000_hi")
	assert.Contains(t, h.engine.inputs[2], "run_002_hi")
}

func TestRunManualTopic(t *testing.T) {
	h := newHarness(t, "Today AI")
	topic := "Quantum chips"
	res, err := h.pipeline().Run(context.Background(), Request{Topic: &topic})
	require.NoError(t, err)
	assert.Equal(t, models.Topic{Text: "Quantum chips", Source: models.TopicSourceManual}, res.Topic)
}

func TestRunBlankTopicUsesSelector(t *testing.T) {
	h := newHarness(t, "Today AI")
	blank := "   "
	res, err := h.pipeline().Run(context.Background(), Request{Topic: &blank})
	require.NoError(t, err)
	assert.Equal(t, models.Topic{Text: "AI Chips", Source: models.TopicSourceTrending}, res.Topic)
}

func TestRunProceduralVisual(t *testing.T) {
	h := newHarness(t, "Today AI")
	h.visual = models.VisualSourceProcedural

	res, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, models.VisualSourceProcedural, res.VisualSrc)
	assert.Equal(t, models.VisualSourceProcedural, h.assembler.spec.Visual.Source)
}

func TestRunComposerFallsBackWhenProviderFails(t *testing.T) {
	h := newHarness(t, "Today AI")
	failing := &mocks.MockImageProvider{}
	failing.On("Name").Return("pexels")
	failing.On("FetchImage", mock.Anything, "AI Chips").Return(nil, errors.New("quota exceeded"))
	h.composer = visual.NewComposer([]services.ImageProvider{failing}, "", time.Second, zap.NewNop())

	res, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, models.VisualSourceProcedural, res.VisualSrc)
	assert.Equal(t, models.VisualSourceProcedural, h.assembler.spec.Visual.Source)
	assert.NotEmpty(t, h.assembler.spec.Visual.Path)
	assert.True(t, h.assembler.visualOK, "visual should exist when assembly runs")
	failing.AssertExpectations(t)
}

func TestRunWithCaptions(t *testing.T) {
	h := newHarness(t, "Today AI Chips")
	h.opts.Captions = true

	res, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, res.Captioned)
	assert.True(t, h.assembler.captionsOK)
	assert.Equal(t, captionsFile, filepath.Base(h.assembler.spec.CaptionsPath))
}

func TestRunAllSynthesisFailed(t *testing.T) {
	h := newHarness(t, "नमस्ते Today")
	h.tts.fail = map[string]bool{"hi": true, "en": true}

	res, err := h.pipeline().Run(context.Background(), Request{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperr.Is(err, apperr.CodeCompositionFailure))
	assert.Equal(t, string(models.StageSynthesizingAudio), apperr.GetStage(err))
	assert.Empty(t, h.sink.published)
	assert.Equal(t, models.StageFailed, h.stages[len(h.stages)-1])
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunPartialFailureAborts(t *testing.T) {
	h := newHarness(t, "नमस्ते दोस्तों Today AI")
	h.tts.fail = map[string]bool{"hi": true}

	_, err := h.pipeline().Run(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrSynthesisFailure))
	assert.Equal(t, string(models.StageSynthesizingAudio), apperr.GetStage(err))

	var synthErr *synth.SynthesisError
	require.True(t, errors.As(err, &synthErr))
	assert.Equal(t, 0, synthErr.Index)
	assert.Equal(t, "hi", synthErr.Language)

	assert.Empty(t, h.silence.requested)
	assert.Empty(t, h.sink.published)
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunPartialFailureSilence(t *testing.T) {
	h := newHarness(t, "नमस्ते दोस्तों Today AI")
	h.tts.fail = map[string]bool{"hi": true}
	h.opts.PartialFailure = PolicySilence

	res, err := h.pipeline().Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SilentRuns)

	require.Len(t, h.silence.requested, 1)
	assert.Equal(t, services.EstimateSeconds("नमस्ते दोस्तों"), h.silence.requested[0])

	clips := h.assembler.spec.Track.Clips
	require.Len(t, clips, 2)
	assert.True(t, clips[0].Silent)
	assert.Equal(t, "hi", clips[0].Language)
	assert.False(t, clips[1].Silent)
	assert.Equal(t, "en", clips[1].Language)
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunAssemblyFailure(t *testing.T) {
	h := newHarness(t, "Today AI")
	h.assembler.err = apperr.New(apperr.CodeEncodingFailure, "ffmpeg exited 1")

	_, err := h.pipeline().Run(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeEncodingFailure))
	assert.Equal(t, string(models.StageAssembling), apperr.GetStage(err))
	assert.Empty(t, h.sink.published)
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunPublishFailureRetainsArtifact(t *testing.T) {
	h := newHarness(t, "Today AI")
	h.sink.err = errors.New("quota exceeded")
	h.opts.RetainDir = t.TempDir()

	runID := uuid.New()
	_, err := h.pipeline().Run(context.Background(), Request{RunID: runID})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodePublishFailure))
	assert.Equal(t, string(models.StagePublishing), apperr.GetStage(err))
	assert.Contains(t, err.Error(), "quota exceeded")

	data, err := os.ReadFile(filepath.Join(h.opts.RetainDir, runID.String()+".mp4"))
	require.NoError(t, err)
	assert.Equal(t, "mp4", string(data))
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, "Today AI")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.tts.cancel = cancel

	_, err := h.pipeline().Run(ctx, Request{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeCancelled))
	assert.Equal(t, string(models.StageSynthesizingAudio), apperr.GetStage(err))
	assert.Empty(t, h.sink.published)
	assertWorkspaceEmpty(t, h.opts.WorkDir)
}

func TestBuildMetadata(t *testing.T) {
	ch := config.Channel{Name: "TechFatafat", Tags: []string{"tech", "ai"}}
	meta := BuildMetadata(ch, models.Topic{Text: "AI, chips & 5G!"}, "28", "unlisted")

	assert.Equal(t, "AI, chips & 5G! #Shorts", meta.Title)
	assert.Contains(t, meta.Description, "Auto-generated tech short for TechFatafat")
	assert.Equal(t, []string{"tech", "ai", "chips", "5g"}, meta.Tags)
	assert.Equal(t, "unlisted", meta.Visibility)
	assert.Equal(t, "TechFatafat", meta.Channel)
}

func TestBuildMetadataTruncatesTitle(t *testing.T) {
	long := strings.Repeat("x", 120)
	meta := BuildMetadata(config.Channel{}, models.Topic{Text: long}, "", "")
	assert.Len(t, []rune(meta.Title), maxTitleRunes)
	assert.Equal(t, "Tech Short #Shorts", BuildMetadata(config.Channel{}, models.Topic{}, "", "").Title)
}

func TestCaptionSegmentsSkipSilence(t *testing.T) {
	composed := composedAudio{
		runs: []models.LanguageRun{
			{Language: "hi", Words: []string{"नमस्ते"}},
			{Language: "en", Words: []string{"Today", "AI"}},
		},
		track: models.AudioTrack{Clips: []models.AudioClip{
			{Index: 0, Language: "hi", Duration: 2, Silent: true},
			{Index: 1, Language: "en", Duration: 3},
		}},
	}
	segs := captionSegments(composed)
	require.Len(t, segs, 1)
	assert.Equal(t, services.CaptionSegment{Text: "Today AI", Start: 2, Duration: 3}, segs[0])
}
