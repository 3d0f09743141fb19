package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
)

const (
	CartesiaAPIVersion = "2024-06-10"

	cartesiaDefaultVoice      = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaEnglishModel      = "sonic-english"
	cartesiaMultilingualModel = "sonic-multilingual"
)

type CartesiaService struct {
	voices map[string]string
	client *resty.Client
	log    *zap.Logger
}

// Ensure CartesiaService implements TTSService at compile time.
var _ TTSService = (*CartesiaService)(nil)

func NewCartesiaService(apiKey, apiURL string, voices map[string]string, log *zap.Logger) *CartesiaService {
	return &CartesiaService{
		voices: voices,
		client: resty.New().
			SetBaseURL(apiURL).
			SetTimeout(60*time.Second).
			SetAuthToken(apiKey).
			SetHeader("Cartesia-Version", CartesiaAPIVersion),
		log: logger.Named(log, "cartesia"),
	}
}

// CartesiaRequest is the /tts/bytes request body.
type CartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        CartesiaVoiceSpecifier    `json:"voice"`
	Language     *string                   `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat      `json:"output_format"`
	Config       *CartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type CartesiaGenerationConfig struct {
	Volume *float64 `json:"volume,omitempty"` // 0.5 to 2.0
	Speed  *float64 `json:"speed,omitempty"`  // 0.6 to 1.5
}

// cartesiaModel picks the English model for en and the multilingual model
// for every other tag.
func cartesiaModel(language string) string {
	if language == "" || language == "en" {
		return cartesiaEnglishModel
	}
	return cartesiaMultilingualModel
}

// GenerateSpeech generates audio from text using Cartesia TTS.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error) {
	voice := s.voices[language]
	if voice == "" {
		voice = cartesiaDefaultVoice
	}

	speed := 0.95
	volume := 1.2
	reqBody := CartesiaRequest{
		ModelID:    cartesiaModel(language),
		Transcript: text,
		Voice:      CartesiaVoiceSpecifier{Mode: "id", ID: voice},
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
		Config: &CartesiaGenerationConfig{Speed: &speed, Volume: &volume},
	}
	if language != "" {
		reqBody.Language = &language
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		Post("/tts/bytes")
	if err != nil {
		return nil, fmt.Errorf("cartesia request failed: %w", err)
	}
	audio, err := audioBody("cartesia", resp)
	if err != nil {
		return nil, err
	}

	s.log.Debug("speech generated", zap.String("lang", language), zap.String("model", reqBody.ModelID), zap.Int("bytes", len(audio)))

	return &TTSResponse{
		AudioData:  audio,
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "mp3",
	}, nil
}
