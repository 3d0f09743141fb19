// Package topic picks the subject of a short.
package topic

import (
	"context"
	"strings"
	"time"

	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"go.uber.org/zap"
)

// Provider returns the current top trending search for a region.
type Provider interface {
	Trending(ctx context.Context, region string) (string, error)
}

// Source selects a topic from the trend provider, falling back to a static
// list. Selection never fails.
type Source struct {
	provider  Provider
	region    string
	fallbacks []string
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewSource builds a source. provider may be nil, in which case the static
// list is always used.
func NewSource(provider Provider, region string, fallbacks []string, timeout time.Duration, log *zap.Logger) *Source {
	return &Source{
		provider:  provider,
		region:    region,
		fallbacks: fallbacks,
		timeout:   timeout,
		now:       time.Now,
		log:       logger.Named(log, "topic"),
	}
}

// Select returns a trending topic, or the fallback topic for today.
func (s *Source) Select(ctx context.Context) models.Topic {
	if s.provider != nil {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		text, err := s.provider.Trending(callCtx, s.region)
		text = strings.Join(strings.Fields(text), " ")
		if err == nil && text != "" {
			return models.Topic{Text: text, Source: models.TopicSourceTrending}
		}
		if err == nil {
			s.log.Warn("trend provider returned no topic, using fallback", zap.String("region", s.region))
		} else {
			s.log.Warn("trend provider failed, using fallback", zap.String("region", s.region), zap.Error(err))
		}
	}
	return models.Topic{Text: s.fallback(), Source: models.TopicSourceFallback}
}

// fallback rotates through the static list by day of year so consecutive
// daily runs do not repeat.
func (s *Source) fallback() string {
	if len(s.fallbacks) == 0 {
		return "Latest Tech Updates"
	}
	day := s.now().YearDay()
	return s.fallbacks[day%len(s.fallbacks)]
}

// Manual wraps an operator supplied topic.
func Manual(text string) models.Topic {
	return models.Topic{Text: strings.Join(strings.Fields(text), " "), Source: models.TopicSourceManual}
}
