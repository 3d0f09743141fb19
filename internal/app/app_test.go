package app

import (
	"context"
	"testing"
	"time"

	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/ja38055/TechFataFat/internal/storage"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testChannel = config.Channel{
	Name:              "TechFatafat",
	Region:            "india",
	PrimaryLanguage:   "hi",
	SecondaryLanguage: "en",
	Classifier:        config.ClassifierTwoLanguage,
	Voices:            map[string]string{"hi": "voice-hi"},
	FallbackTopics:    config.DefaultFallbackTopics,
	ScriptTemplate:    config.DefaultScriptTemplate,
	Tags:              []string{"tech"},
	Schedule:          "@daily",
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		PublishTarget:   config.PublishLocal,
		OutputDir:       t.TempDir(),
		WorkDir:         t.TempDir(),
		TTSProvider:     config.TTSGoogle,
		TTSConcurrency:  2,
		PartialFailure:  config.PolicyAbort,
		MinDurationSec:  30,
		MaxDurationSec:  60,
		BedVolume:       0.1,
		ProviderTimeout: time.Second,
		EncodeTimeout:   time.Minute,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		Channels:        []config.Channel{testChannel},
	}
}

func providerNames(providers []services.ImageProvider) []string {
	return lo.Map(providers, func(p services.ImageProvider, _ int) string { return p.Name() })
}

func TestImageProviders(t *testing.T) {
	cfg := localConfig(t)
	assert.Equal(t, []string{"pollinations"}, providerNames(ImageProviders(cfg, zap.NewNop())))

	cfg.PexelsKey = "pexels-key"
	cfg.GeminiKey = "gemini-key"
	assert.Equal(t, []string{"pexels", "gemini", "pollinations"}, providerNames(ImageProviders(cfg, zap.NewNop())))
}

func TestSink(t *testing.T) {
	cfg := localConfig(t)
	sink, err := Sink(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalSink{}, sink)

	cfg.PublishTarget = config.PublishSupabase
	cfg.SupabaseURL = "https://example.supabase.co/"
	sink, err = Sink(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "supabase", sink.Name())

	cfg.PublishTarget = config.PublishYouTube
	_, err = Sink(cfg, zap.NewNop())
	assert.Error(t, err, "youtube needs credentials")

	cfg.PublishTarget = "ftp"
	_, err = Sink(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestTTS(t *testing.T) {
	cfg := localConfig(t)

	tts, err := TTS(cfg, testChannel, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &services.GoogleTTSService{}, tts)

	cfg.TTSProvider = config.TTSElevenLabs
	cfg.ElevenLabsKey = "key"
	tts, err = TTS(cfg, testChannel, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &services.FallbackTTS{}, tts)

	cfg.TTSProvider = "espeak"
	_, err = TTS(cfg, testChannel, zap.NewNop())
	assert.Error(t, err)
}

func TestVoicesPreferChannelOverrides(t *testing.T) {
	got := voices(testChannel, "default-voice")
	assert.Equal(t, map[string]string{"hi": "voice-hi", "en": "default-voice"}, got)

	assert.Equal(t, map[string]string{"hi": "voice-hi"}, voices(testChannel, ""))
}

func TestAppWithoutBackingServices(t *testing.T) {
	a, err := New(localConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	store, err := a.Store(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &db.MemoryStore{}, store)

	q, err := a.Queue()
	require.NoError(t, err)
	assert.IsType(t, &queue.Local{}, q)

	p, err := a.Pipeline(testChannel, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)

	runner, err := a.RunnerFactory()(testChannel, nil)
	require.NoError(t, err)
	assert.NotNil(t, runner)
}

func TestAppRejectsUnknownProvider(t *testing.T) {
	cfg := localConfig(t)
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	cfg.TTSProvider = "espeak"
	_, err = a.Pipeline(testChannel, nil)
	assert.Error(t, err)
}
