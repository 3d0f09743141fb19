package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	captionsFile  = "captions.ass"
	maxTopicTags  = 8
	titleSuffix   = " #Shorts"
	defaultTitle  = "Tech Short"
	maxTitleRunes = 100
)

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

// BuildMetadata derives the publish bundle for a topic on a channel.
func BuildMetadata(channel config.Channel, topic models.Topic, categoryID, visibility string) models.Metadata {
	subject := strings.TrimSpace(topic.Text)
	if subject == "" {
		subject = defaultTitle
	}
	title := subject + titleSuffix
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string([]rune(subject)[:maxTitleRunes-len([]rune(titleSuffix))]) + titleSuffix
	}

	tags := append([]string{}, channel.Tags...)
	tags = append(tags, topicTags(subject)...)

	return models.Metadata{
		Title:       title,
		Description: fmt.Sprintf("Auto-generated tech short for %s\n\nTopic: %s", channel.Name, subject),
		CategoryID:  categoryID,
		Tags:        lo.Uniq(tags),
		Visibility:  visibility,
		Channel:     channel.Name,
	}
}

// topicTags turns the topic's words into lowercase tags, dropping
// punctuation and single characters.
func topicTags(topic string) []string {
	words := strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
	tags := lo.Filter(lo.Uniq(words), func(w string, _ int) bool {
		return len([]rune(w)) > 1
	})
	if len(tags) > maxTopicTags {
		tags = tags[:maxTopicTags]
	}
	return tags
}

// ---------------------------------------------------------------------------
// Captions
// ---------------------------------------------------------------------------

// captionSegments places each voiced run on the track timeline. Silent clips
// advance the cursor but carry no caption.
func captionSegments(audio composedAudio) []services.CaptionSegment {
	var segments []services.CaptionSegment
	cursor := 0.0
	for _, clip := range audio.track.Clips {
		if !clip.Silent && clip.Index >= 0 && clip.Index < len(audio.runs) {
			segments = append(segments, services.CaptionSegment{
				Text:     audio.runs[clip.Index].Text(),
				Start:    cursor,
				Duration: clip.Duration,
			})
		}
		cursor += clip.Duration
	}
	return segments
}

// writeCaptions renders burned-in captions for the track. Captions are
// optional: a failure is logged and the short is rendered without them.
func (p *Pipeline) writeCaptions(audio composedAudio, dir string, log *zap.Logger) string {
	words := services.SpreadWords(captionSegments(audio))
	if len(words) == 0 {
		return ""
	}
	path := filepath.Join(dir, captionsFile)
	if err := services.WriteASSCaptions(words, path); err != nil {
		log.Warn("failed to write captions, rendering without them", zap.Error(err))
		return ""
	}
	return path
}

func estimateRunSeconds(run models.LanguageRun) float64 {
	return services.EstimateSeconds(run.Text())
}

// ---------------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------------

// retain moves an unpublished artifact out of the workspace so an operator
// can retry the upload by hand.
func (p *Pipeline) retain(runID uuid.UUID, artifact models.Artifact, log *zap.Logger) {
	if p.opts.RetainDir == "" || artifact.Path == "" {
		return
	}
	if err := os.MkdirAll(p.opts.RetainDir, 0o755); err != nil {
		log.Warn("failed to create retain dir", zap.String("dir", p.opts.RetainDir), zap.Error(err))
		return
	}
	dst := filepath.Join(p.opts.RetainDir, runID.String()+filepath.Ext(artifact.Path))
	if err := moveFile(artifact.Path, dst); err != nil {
		log.Warn("failed to retain artifact", zap.String("dst", dst), zap.Error(err))
		return
	}
	log.Info("artifact retained for manual publish", zap.String("path", dst))
}

// moveFile renames src to dst, copying when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
