package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Partial synthesis failure policies
const (
	PolicyAbort   = "abort"   // every run must synthesize or the whole run fails
	PolicySilence = "silence" // failed runs are replaced with silence of the estimated length
)

// Publish targets
const (
	PublishYouTube  = "youtube"
	PublishSupabase = "supabase"
	PublishLocal    = "local"
)

// TTS providers
const (
	TTSGoogle     = "google"
	TTSElevenLabs = "elevenlabs"
	TTSCartesia   = "cartesia"
	TTSOpenAI     = "openai"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database (optional; runs are kept in memory when empty)
	DatabaseURL string

	// Redis (optional; an in-process queue is used when empty)
	RedisURL string

	// Supabase (archive publish target)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Publishing
	PublishTarget      string
	YouTubeCredentials string // JSON bundle: token, refresh_token, token_uri, client_id, client_secret, scopes
	Visibility         string
	CategoryID         string
	OutputDir          string // destination for the local publish target

	// OpenAI (optional script enrichment and TTS)
	OpenAIKey      string
	OpenAIModel    string
	OpenAITTSVoice string

	// Image providers (all optional; Pollinations needs no key)
	PexelsKey  string
	GeminiKey  string
	ImageModel string

	// TTS
	TTSProvider       string
	TTSFallback       bool // fall back to Google translate TTS when the primary provider fails
	TTSConcurrency    int
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CartesiaKey       string
	CartesiaURL       string
	CartesiaVoiceID   string

	// Audio
	BackgroundMusicPath string // Path to background bed (empty or missing = no bed)
	BedVolume           float64

	// Rendering
	FontPath         string
	MinDurationSec   float64
	MaxDurationSec   float64
	CaptionsEnabled  bool
	FFmpegPath       string
	FFprobePath      string
	WorkDir          string
	PartialFailure   string
	ProviderTimeout  time.Duration
	EncodeTimeout    time.Duration
	ScriptEnrichment bool

	// Logging
	LogLevel string
	LogDir   string

	// Worker
	MaxConcurrentJobs int
	RunTimeout        time.Duration // bounds one pipeline run; zero means no limit

	// Channels
	ChannelsFile string
	Channels     []Channel
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "techfatafat-shorts"),
		PublishTarget:         strings.ToLower(getEnv("PUBLISH_TARGET", PublishYouTube)),
		YouTubeCredentials:    getEnv("YOUTUBE_CREDENTIALS", ""),
		Visibility:            getEnv("YOUTUBE_VISIBILITY", "public"),
		CategoryID:            getEnv("YOUTUBE_CATEGORY_ID", "28"),
		OutputDir:             getEnv("OUTPUT_DIR", "output"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITTSVoice:        getEnv("OPENAI_TTS_VOICE", "alloy"),
		PexelsKey:             getEnv("PEXELS_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		ImageModel:            getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		TTSProvider:           strings.ToLower(getEnv("TTS_PROVIDER", TTSGoogle)),
		TTSFallback:           getEnvBool("TTS_FALLBACK_ENABLED", true),
		TTSConcurrency:        getEnvInt("TTS_CONCURRENCY", 4),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		BackgroundMusicPath:   getEnv("BACKGROUND_MUSIC_PATH", "assets/music/bed.mp3"),
		BedVolume:             getEnvFloat("BED_VOLUME", 0.12),
		FontPath:              getEnv("FONT_PATH", "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"),
		MinDurationSec:        getEnvFloat("MIN_DURATION_SEC", 30),
		MaxDurationSec:        getEnvFloat("MAX_DURATION_SEC", 60),
		CaptionsEnabled:       getEnvBool("CAPTIONS_ENABLED", false),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		WorkDir:               getEnv("WORK_DIR", os.TempDir()+"/techfatafat"),
		PartialFailure:        strings.ToLower(getEnv("PARTIAL_FAILURE_POLICY", PolicyAbort)),
		ProviderTimeout:       getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		EncodeTimeout:         getEnvDuration("ENCODE_TIMEOUT", 5*time.Minute),
		ScriptEnrichment:      getEnvBool("SCRIPT_ENRICHMENT", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogDir:                getEnv("LOG_DIR", ""),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		RunTimeout:            getEnvDuration("RUN_TIMEOUT", 20*time.Minute),
		ChannelsFile:          getEnv("CHANNELS_FILE", ""),
	}

	// The env-defined channel is always present; a channels file adds more
	// or overrides it by name.
	channels := []Channel{defaultChannelFromEnv()}
	if cfg.ChannelsFile != "" {
		fromFile, err := LoadChannels(cfg.ChannelsFile)
		if err != nil {
			return nil, err
		}
		channels = mergeChannels(channels, fromFile)
	}
	cfg.Channels = channels

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements. Only the configured publish
// target and TTS provider need credentials; everything else has a keyless
// fallback.
func (c *Config) Validate() error {
	if c.MinDurationSec <= 0 || c.MaxDurationSec < c.MinDurationSec {
		return fmt.Errorf("invalid duration window [%v, %v]", c.MinDurationSec, c.MaxDurationSec)
	}

	if c.PartialFailure != PolicyAbort && c.PartialFailure != PolicySilence {
		return fmt.Errorf("PARTIAL_FAILURE_POLICY must be %q or %q", PolicyAbort, PolicySilence)
	}

	switch c.PublishTarget {
	case PublishYouTube:
		if c.YouTubeCredentials == "" {
			return fmt.Errorf("YOUTUBE_CREDENTIALS is required when PUBLISH_TARGET=youtube")
		}
	case PublishSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when PUBLISH_TARGET=supabase")
		}
	case PublishLocal:
	default:
		return fmt.Errorf("unknown PUBLISH_TARGET %q", c.PublishTarget)
	}

	switch c.TTSProvider {
	case TTSGoogle:
	case TTSElevenLabs:
		if c.ElevenLabsKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
		}
	case TTSCartesia:
		if c.CartesiaKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required when TTS_PROVIDER=cartesia")
		}
	case TTSOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TTS_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.ScriptEnrichment && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when SCRIPT_ENRICHMENT is enabled")
	}

	if c.TTSConcurrency < 1 {
		c.TTSConcurrency = 1
	}
	if c.MaxConcurrentJobs < 1 {
		c.MaxConcurrentJobs = 1
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return err
		}
	}
	dupes := lo.FindDuplicatesBy(c.Channels, func(ch Channel) string { return strings.ToLower(ch.Name) })
	if len(dupes) > 0 {
		return fmt.Errorf("duplicate channel name %q", dupes[0].Name)
	}

	return nil
}

// Channel looks up a channel by name, case-insensitively. An empty name
// selects the first configured channel.
func (c *Config) Channel(name string) (Channel, bool) {
	if name == "" {
		if len(c.Channels) == 0 {
			return Channel{}, false
		}
		return c.Channels[0], true
	}
	return lo.Find(c.Channels, func(ch Channel) bool {
		return strings.EqualFold(ch.Name, name)
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := lo.Map(strings.Split(value, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Compact(parts)
}
