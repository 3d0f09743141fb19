// Package script turns a topic into the spoken narration.
package script

import (
	"context"
	"strings"
	"time"

	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"go.uber.org/zap"
)

// MaxWords keeps the narration under the maximum duration at narration pace.
const MaxWords = 140

// Enricher writes a longer narration for a topic.
type Enricher interface {
	Enrich(ctx context.Context, req services.EnrichRequest) (string, error)
}

type Composer struct {
	channel  config.Channel
	enricher Enricher
	timeout  time.Duration
	log      *zap.Logger
}

// NewComposer builds a template composer for the channel. enricher may be
// nil.
func NewComposer(channel config.Channel, enricher Enricher, timeout time.Duration, log *zap.Logger) *Composer {
	return &Composer{
		channel:  channel,
		enricher: enricher,
		timeout:  timeout,
		log:      logger.Named(log, "script"),
	}
}

// Compose builds the script for topic. Enrichment failures fall back to the
// channel template, so composing never fails.
func (c *Composer) Compose(ctx context.Context, topic models.Topic) models.Script {
	if c.enricher != nil {
		if text, ok := c.enrich(ctx, topic); ok {
			return models.Script{Topic: topic.Text, Text: text}
		}
	}
	return models.Script{Topic: topic.Text, Text: c.fromTemplate(topic)}
}

func (c *Composer) fromTemplate(topic models.Topic) string {
	body := strings.NewReplacer(
		"{channel}", c.channel.Name,
		"{topic}", topic.Text,
	).Replace(c.channel.ScriptTemplate)

	if c.channel.Greeting != "" {
		body = c.channel.Greeting + " " + body
	}
	return normalize(body)
}

func (c *Composer) enrich(ctx context.Context, topic models.Topic) (string, bool) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.enricher.Enrich(callCtx, services.EnrichRequest{
		Topic:     topic.Text,
		Channel:   c.channel.Name,
		Greeting:  c.channel.Greeting,
		Languages: c.channel.Languages(),
	})
	if err != nil {
		c.log.Warn("script enrichment failed, using template", zap.String("topic", topic.Text), zap.Error(err))
		return "", false
	}

	text = normalize(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// normalize collapses whitespace and caps the word count.
func normalize(text string) string {
	words := strings.Fields(text)
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}
	return strings.Join(words, " ")
}
