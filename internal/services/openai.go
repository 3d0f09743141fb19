package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ja38055/TechFataFat/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOpenAIVoice = "alloy"

	// maxEnrichedWords keeps an enriched narration inside the 60 second cap
	// at the 140 WPM narration pace.
	maxEnrichedWords = 130
)

type OpenAIService struct {
	client *openai.Client
	model  string
	voice  string
	log    *zap.Logger
}

var _ TTSService = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, model, voice string, log *zap.Logger) *OpenAIService {
	return newOpenAIService(openai.DefaultConfig(apiKey), model, voice, log)
}

// NewOpenAIServiceWithBaseURL targets an OpenAI compatible endpoint.
func NewOpenAIServiceWithBaseURL(apiKey, baseURL, model, voice string, log *zap.Logger) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newOpenAIService(cfg, model, voice, log)
}

func newOpenAIService(cfg openai.ClientConfig, model, voice string, log *zap.Logger) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		voice:  voice,
		log:    logger.Named(log, "openai"),
	}
}

// ---------------------------------------------------------------------------
// Script enrichment
// ---------------------------------------------------------------------------

// EnrichRequest carries what the model needs to write a narration.
type EnrichRequest struct {
	Topic     string
	Channel   string
	Greeting  string
	Languages []string // primary first
}

type enrichResponse struct {
	Script string `json:"script"`
}

// Enrich writes a short code-switched narration for the topic. The result is
// plain spoken text; it is never shown on screen.
func (s *OpenAIService) Enrich(ctx context.Context, req EnrichRequest) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildEnrichSystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Topic: %q", req.Topic)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	raw := resp.Choices[0].Message.Content
	var out enrichResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn("enrichment parse failed", zap.String("raw", truncateString(raw, 500)), zap.Error(err))
		return "", fmt.Errorf("failed to parse enrichment: %w", err)
	}

	script := strings.Join(strings.Fields(out.Script), " ")
	if script == "" {
		return "", fmt.Errorf("enrichment returned an empty script")
	}

	s.log.Debug("script enriched", zap.String("topic", req.Topic), zap.Int("words", len(strings.Fields(script))))
	return script, nil
}

func buildEnrichSystemPrompt(req EnrichRequest) string {
	langs := "English"
	if len(req.Languages) > 0 {
		langs = strings.Join(req.Languages, " and ")
	}

	prompt := fmt.Sprintf(`You write voiceover narration for %s, a YouTube Shorts channel about technology.

Write one narration of at most %d words about the topic, spoken naturally in a mix of these languages: %s.
Write each language in its own native script so a text-to-speech engine can voice it. Keep technical terms in English.
Use short, punchy sentences written to be listened to. No emojis, hashtags, stage directions or markdown.`,
		req.Channel, maxEnrichedWords, langs)

	if req.Greeting != "" {
		prompt += fmt.Sprintf("\nOpen with this greeting: %q", req.Greeting)
	}

	prompt += "\n\nRespond with JSON: {\"script\": \"...\"}"
	return prompt
}

// ---------------------------------------------------------------------------
// Speech
// ---------------------------------------------------------------------------

// GenerateSpeech voices text with OpenAI TTS. The voices are multilingual and
// infer the language from the text, so the tag is only logged.
func (s *OpenAIService) GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai returned empty audio")
	}

	s.log.Debug("speech generated", zap.String("lang", language), zap.Int("bytes", len(audio)))
	return &TTSResponse{
		AudioData:  audio,
		DurationMs: estimateAudioDuration(text, 1.0),
		Format:     "mp3",
	}, nil
}
