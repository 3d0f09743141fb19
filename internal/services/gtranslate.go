package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Google Translate TTS
// The keyless translate_tts endpoint. It accepts at most ~200 characters per
// request, so longer runs are split on word boundaries and the MP3 responses
// are concatenated (MP3 frames are self-delimiting).
// ---------------------------------------------------------------------------

const (
	googleTTSMaxChars = 200
	googleTTSPath     = "/translate_tts"
)

type GoogleTTSService struct {
	client  *resty.Client
	accents map[string]string // language tag -> host suffix, e.g. en -> co.in
	baseURL string            // overrides the per-accent host (tests)
	log     *zap.Logger
}

var _ TTSService = (*GoogleTTSService)(nil)

// NewGoogleTTSService creates the keyless provider. accents maps a language
// tag to the translate host suffix that selects the regional accent.
func NewGoogleTTSService(accents map[string]string, timeout time.Duration, log *zap.Logger) *GoogleTTSService {
	return &GoogleTTSService{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)").
			SetRetryCount(0),
		accents: accents,
		log:     logger.Named(log, "google-tts"),
	}
}

// WithBaseURL points the service at a fixed host instead of
// translate.google.<accent>.
func (s *GoogleTTSService) WithBaseURL(baseURL string) *GoogleTTSService {
	s.baseURL = baseURL
	return s
}

func (s *GoogleTTSService) host(language string) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	suffix := s.accents[language]
	if suffix == "" {
		suffix = "com"
	}
	return "https://translate.google." + suffix
}

// GenerateSpeech implements TTSService.
func (s *GoogleTTSService) GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error) {
	if language == "" {
		return nil, fmt.Errorf("google tts: %w: empty tag", ErrUnsupportedLanguage)
	}

	chunks := splitForTTS(text, googleTTSMaxChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("google tts: empty text")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"ie":      "UTF-8",
				"client":  "tw-ob",
				"tl":      language,
				"q":       chunk,
				"total":   strconv.Itoa(len(chunks)),
				"idx":     strconv.Itoa(i),
				"textlen": strconv.Itoa(len([]rune(chunk))),
			}).
			Get(s.host(language) + googleTTSPath)
		if err != nil {
			return nil, fmt.Errorf("google tts request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("google tts returned status %d for lang %s", resp.StatusCode(), language)
		}
		if len(resp.Body()) == 0 {
			return nil, fmt.Errorf("google tts returned empty audio")
		}
		audio.Write(resp.Body())
	}

	durationMs := estimateAudioDuration(text, 1.0)
	s.log.Debug("speech generated",
		zap.String("lang", language),
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", audio.Len()))

	return &TTSResponse{
		AudioData:  audio.Bytes(),
		DurationMs: durationMs,
		Format:     "mp3",
	}, nil
}
