// Package app wires configuration into the concrete providers, sinks and
// stores shared by the commands.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ja38055/TechFataFat/internal/audio"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/pipeline"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/ja38055/TechFataFat/internal/render"
	"github.com/ja38055/TechFataFat/internal/script"
	"github.com/ja38055/TechFataFat/internal/segment"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/ja38055/TechFataFat/internal/storage"
	"github.com/ja38055/TechFataFat/internal/synth"
	"github.com/ja38055/TechFataFat/internal/topic"
	"github.com/ja38055/TechFataFat/internal/visual"
	"github.com/ja38055/TechFataFat/internal/worker"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const localQueueCapacity = 64

// App holds the process-wide collaborators. Per-channel pieces (TTS voices,
// topic source, script template) are built per run by Pipeline.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	ffmpeg  *services.FFmpegService
	openai  *services.OpenAIService
	trends  topic.Provider
	images  []services.ImageProvider
	sink    pipeline.PublishSink
	policy  render.DurationPolicy
	closers []func() error
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.Named(log, "app")

	a := &App{
		cfg:    cfg,
		log:    log,
		ffmpeg: services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, log),
		trends: topic.NewGoogleTrends(cfg.ProviderTimeout),
		policy: render.DurationPolicy{Min: cfg.MinDurationSec, Max: cfg.MaxDurationSec},
	}

	if cfg.OpenAIKey != "" {
		a.openai = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAITTSVoice, log)
	}
	a.images = ImageProviders(cfg, log)

	sink, err := Sink(cfg, log)
	if err != nil {
		return nil, err
	}
	a.sink = sink

	log.Info("app configured",
		zap.String("publish_target", sink.Name()),
		zap.String("tts_provider", cfg.TTSProvider),
		zap.Strings("image_providers", lo.Map(a.images, func(p services.ImageProvider, _ int) string { return p.Name() })),
		zap.Int("channels", len(cfg.Channels)))
	return a, nil
}

// ---------------------------------------------------------------------------
// Process-wide pieces
// ---------------------------------------------------------------------------

// ImageProviders returns the configured backdrop providers in preference
// order. Pollinations needs no key and is always last.
func ImageProviders(cfg *config.Config, log *zap.Logger) []services.ImageProvider {
	var providers []services.ImageProvider
	if cfg.PexelsKey != "" {
		providers = append(providers, services.NewPexelsService(cfg.PexelsKey, cfg.ProviderTimeout, log))
	}
	if cfg.GeminiKey != "" {
		providers = append(providers, services.NewGeminiService(cfg.GeminiKey, cfg.ImageModel, log))
	}
	return append(providers, services.NewPollinationsService(services.OutputWidth, services.OutputHeight, cfg.ProviderTimeout))
}

// Sink builds the publish target named by PUBLISH_TARGET.
func Sink(cfg *config.Config, log *zap.Logger) (pipeline.PublishSink, error) {
	switch cfg.PublishTarget {
	case config.PublishYouTube:
		creds, err := services.LoadYouTubeCredentials(cfg.YouTubeCredentials)
		if err != nil {
			return nil, err
		}
		return services.NewYouTubeService(creds, log), nil
	case config.PublishSupabase:
		return storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, log), nil
	case config.PublishLocal:
		return storage.NewLocalSink(cfg.OutputDir, log), nil
	default:
		return nil, fmt.Errorf("unknown publish target %q", cfg.PublishTarget)
	}
}

// TTS builds the speech chain for a channel: the configured provider first,
// then Google translate TTS when fallback is enabled.
func TTS(cfg *config.Config, ch config.Channel, log *zap.Logger) (services.TTSService, error) {
	google := services.NewGoogleTTSService(ch.Accents, cfg.ProviderTimeout, log)

	var primary services.TTSService
	switch cfg.TTSProvider {
	case config.TTSGoogle:
		return google, nil
	case config.TTSElevenLabs:
		primary = services.NewElevenLabsService(cfg.ElevenLabsKey, voices(ch, cfg.ElevenLabsVoiceID), log)
	case config.TTSCartesia:
		primary = services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, voices(ch, cfg.CartesiaVoiceID), log)
	case config.TTSOpenAI:
		primary = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAITTSVoice, log)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTSProvider)
	}

	chain := services.NewFallbackTTS(cfg.TTSProvider, primary, log)
	if cfg.TTSFallback {
		chain.AddFallback(config.TTSGoogle, google)
	}
	return chain, nil
}

// voices fills in the provider-wide default voice for channel languages that
// have no voice of their own.
func voices(ch config.Channel, fallback string) map[string]string {
	out := map[string]string{}
	if fallback != "" {
		for _, lang := range ch.Languages() {
			out[lang] = fallback
		}
	}
	return lo.Assign(out, ch.Voices)
}

// ---------------------------------------------------------------------------
// Stores and queues
// ---------------------------------------------------------------------------

// Store opens Postgres when DATABASE_URL is set, otherwise an in-memory store.
func (a *App) Store(ctx context.Context) (db.RunStore, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("DATABASE_URL not set, keeping run history in memory")
		return db.NewMemoryStore(), nil
	}
	database, err := db.New(a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	a.closers = append(a.closers, database.Close)
	a.log.Info("connected to database")
	return database, nil
}

// Queue connects to Redis when REDIS_URL is set, otherwise an in-process
// queue that only an embedded worker can drain.
func (a *App) Queue() (queue.Broker, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("REDIS_URL not set, using in-process queue")
		return queue.NewLocal(localQueueCapacity), nil
	}
	q, err := queue.New(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, q.Close)
	a.log.Info("connected to redis queue")
	return q, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// ---------------------------------------------------------------------------
// Per-channel pipeline
// ---------------------------------------------------------------------------

// Pipeline assembles the full pipeline for one channel. obs may be nil.
func (a *App) Pipeline(ch config.Channel, obs pipeline.Observer) (*pipeline.Pipeline, error) {
	cfg := a.cfg
	log := a.log.With(zap.String("channel", ch.Name))

	tts, err := TTS(cfg, ch, log)
	if err != nil {
		return nil, err
	}

	var enricher script.Enricher
	if cfg.ScriptEnrichment && a.openai != nil {
		enricher = a.openai
	}

	return pipeline.New(pipeline.Deps{
		Topics:    topic.NewSource(a.trends, ch.Region, ch.FallbackTopics, cfg.ProviderTimeout, log),
		Scripts:   script.NewComposer(ch, enricher, cfg.ProviderTimeout, log),
		Segmenter: segment.ForName(ch.Classifier, ch.PrimaryLanguage, ch.SecondaryLanguage),
		Synth:     synth.New(tts, a.ffmpeg, cfg.ProviderTimeout, cfg.TTSConcurrency, log),
		Silence:   a.ffmpeg,
		Audio:     audio.NewComposer(a.ffmpeg, cfg.BedVolume, log),
		Visual:    visual.NewComposer(a.images, cfg.FontPath, cfg.ProviderTimeout, log),
		Assembler: render.NewAssembler(a.ffmpeg, a.policy, cfg.EncodeTimeout, log),
		Sink:      a.sink,
		Observer:  obs,
	}, pipeline.Options{
		Channel:        ch,
		PartialFailure: cfg.PartialFailure,
		BedPath:        cfg.BackgroundMusicPath,
		Policy:         a.policy,
		Captions:       cfg.CaptionsEnabled,
		CategoryID:     cfg.CategoryID,
		Visibility:     cfg.Visibility,
		WorkDir:        cfg.WorkDir,
		RetainDir:      filepath.Join(cfg.OutputDir, "failed"),
	}, log), nil
}

// RunnerFactory adapts Pipeline for the worker.
func (a *App) RunnerFactory() worker.RunnerFactory {
	return func(ch config.Channel, obs pipeline.Observer) (worker.Runner, error) {
		p, err := a.Pipeline(ch, obs)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
