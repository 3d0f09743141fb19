package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Model: eleven_flash_v2_5 (multilingual, accepts an explicit language_code)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "mp3_44100_128"
)

// ElevenLabsService handles text-to-speech via ElevenLabs API.
type ElevenLabsService struct {
	modelID string
	voices  map[string]string // language tag -> voice ID
	client  *resty.Client
	log     *zap.Logger
}

// Ensure ElevenLabsService implements TTSService at compile time.
var _ TTSService = (*ElevenLabsService)(nil)

// NewElevenLabsService creates the provider. voices maps language tags to
// voice IDs; tags without an entry use the default multilingual voice.
func NewElevenLabsService(apiKey string, voices map[string]string, log *zap.Logger) *ElevenLabsService {
	return &ElevenLabsService{
		modelID: elevenLabsDefaultModel,
		voices:  voices,
		client: resty.New().
			SetBaseURL(elevenLabsBaseURL).
			SetTimeout(90*time.Second).
			SetHeader("xi-api-key", apiKey),
		log: logger.Named(log, "elevenlabs"),
	}
}

// WithBaseURL overrides the API host.
func (s *ElevenLabsService) WithBaseURL(baseURL string) *ElevenLabsService {
	s.client.SetBaseURL(baseURL)
	return s
}

func (s *ElevenLabsService) voiceFor(language string) string {
	if v := s.voices[language]; v != "" {
		return v
	}
	return elevenLabsDefaultVoice
}

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	LanguageCode  string                   `json:"language_code,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	Speed         *float64                 `json:"speed,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// GenerateSpeech converts text to speech using ElevenLabs.
func (s *ElevenLabsService) GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error) {
	voice := s.voiceFor(language)

	speed := 0.95
	reqBody := elevenLabsRequest{
		Text:         text,
		ModelID:      s.modelID,
		LanguageCode: language,
		Speed:        &speed,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60,
			SimilarityBoost: 0.80,
			Style:           0.25,
			UseSpeakerBoost: true,
		},
	}

	s.log.Debug("generating speech",
		zap.String("voice", voice),
		zap.String("lang", language),
		zap.Int("text_len", len(text)))

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("voice", voice).
		SetQueryParam("output_format", elevenLabsOutputFormat).
		SetBody(reqBody).
		Post("/v1/text-to-speech/{voice}")
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	audio, err := audioBody("ElevenLabs", resp)
	if err != nil {
		return nil, err
	}

	return &TTSResponse{
		AudioData:  audio,
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "mp3",
	}, nil
}
