package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// TTSService: common interface for text-to-speech providers.
// Every provider takes the language tag of the run it is voicing and resolves
// its own voice/locale for that tag.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int    // provider-reported or estimated; the synthesizer re-measures the file
	Format     string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text in the given language (a BCP-47 style tag
	// such as "hi" or "en") to audio.
	GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error)
}

// ErrUnsupportedLanguage is returned by providers with no voice for a tag.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ---------------------------------------------------------------------------
// FallbackTTS tries providers in order and returns the first success.
// ---------------------------------------------------------------------------

type namedTTS struct {
	name string
	svc  TTSService
}

type FallbackTTS struct {
	providers []namedTTS
	log       *zap.Logger
}

var _ TTSService = (*FallbackTTS)(nil)

// NewFallbackTTS creates a chain with primary as the preferred provider.
func NewFallbackTTS(primaryName string, primary TTSService, log *zap.Logger) *FallbackTTS {
	return &FallbackTTS{
		providers: []namedTTS{{name: primaryName, svc: primary}},
		log:       logger.Named(log, "tts"),
	}
}

// AddFallback registers an additional provider tried after the earlier ones.
func (f *FallbackTTS) AddFallback(name string, svc TTSService) {
	f.providers = append(f.providers, namedTTS{name: name, svc: svc})
}

// GenerateSpeech returns the first successful response. A cancelled context
// stops the chain immediately.
func (f *FallbackTTS) GenerateSpeech(ctx context.Context, text, language string) (*TTSResponse, error) {
	var errs []error
	for i, p := range f.providers {
		resp, err := p.svc.GenerateSpeech(ctx, text, language)
		if err == nil {
			if i > 0 {
				f.log.Warn("tts served by fallback provider", zap.String("provider", p.name), zap.String("lang", language))
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		if ctx.Err() != nil {
			break
		}
		f.log.Warn("tts provider failed", zap.String("provider", p.name), zap.String("lang", language), zap.Error(err))
	}
	return nil, errors.Join(errs...)
}

// audioBody returns the raw audio of a provider response that answers with
// the audio file itself.
func audioBody(provider string, resp *resty.Response) ([]byte, error) {
	if resp.StatusCode() != http.StatusOK {
		body := resp.String()
		if len(body) > 300 {
			body = body[:300] + "..."
		}
		return nil, fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode(), body)
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("%s returned empty audio", provider)
	}
	return resp.Body(), nil
}

// estimateAudioDuration estimates duration based on text length and speed
// Average speaking rate is ~140 words per minute at normal speed (narration pace, not conversational)
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(bytes.Fields([]byte(text)))
	baseWPM := 140.0

	actualWPM := baseWPM * speed

	minutes := float64(words) / actualWPM
	return int(minutes * 60 * 1000)
}

// EstimateSeconds is the exported estimate used when a clip cannot be probed
// or a failed run is replaced with silence.
func EstimateSeconds(text string) float64 {
	return float64(estimateAudioDuration(text, 1.0)) / 1000
}

// splitForTTS breaks text into chunks of at most maxLen bytes on word
// boundaries. A single word longer than maxLen becomes its own chunk.
func splitForTTS(text string, maxLen int) []string {
	var chunks []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
