package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiImageModel = "gemini-2.5-flash-image"

// GeminiService generates a backdrop image for a topic with the Gen AI SDK.
type GeminiService struct {
	apiKey string
	model  string
	log    *zap.Logger
}

var _ ImageProvider = (*GeminiService)(nil)

func NewGeminiService(apiKey, model string, log *zap.Logger) *GeminiService {
	if model == "" {
		model = defaultGeminiImageModel
	}
	return &GeminiService{
		apiKey: apiKey,
		model:  model,
		log:    logger.Named(log, "gemini"),
	}
}

func (s *GeminiService) Name() string { return "gemini" }

// FetchImage asks the model for a portrait illustration of the topic and
// returns the first inline image part.
func (s *GeminiService) FetchImage(ctx context.Context, topic string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(composeBackdropPrompt(topic)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			s.log.Debug("image generated", zap.String("mime", part.InlineData.MIMEType), zap.Int("bytes", len(part.InlineData.Data)))
			return part.InlineData.Data, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		return nil, fmt.Errorf("gemini returned text instead of image: %s", truncateString(textParts[0], 200))
	}
	return nil, fmt.Errorf("no image data found in response")
}

// composeBackdropPrompt asks for a text-free backdrop; the title card text is
// drawn locally so it is always legible.
func composeBackdropPrompt(topic string) string {
	var b strings.Builder
	b.WriteString("Create a vivid, modern technology illustration for a vertical 9:16 YouTube Short.\n")
	b.WriteString("SUBJECT: ")
	b.WriteString(topic)
	b.WriteString("\nKeep the centre of the frame uncluttered. Do NOT render any text, letters, logos or watermarks.")
	b.WriteString("\nOutput: Portrait 9:16.")
	return b.String()
}

// truncateString truncates a string to maxLen bytes and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
