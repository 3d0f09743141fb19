// Package segment splits a script into contiguous same-language runs so each
// run can be voiced by a provider configured for that language.
package segment

import (
	"strings"

	"github.com/ja38055/TechFataFat/internal/models"
)

// Classifier tags a single word. ok=false marks the word as neutral (no
// letters, e.g. numbers or punctuation); neutral words join the current run.
type Classifier func(word string) (tag string, ok bool)

type Segmenter struct {
	classify Classifier
	neutral  string // tag for a script made only of neutral words
}

// New returns a Segmenter using classify. neutralTag is used only when no
// word in the script can be classified.
func New(classify Classifier, neutralTag string) *Segmenter {
	return &Segmenter{classify: classify, neutral: neutralTag}
}

// NewTwoLanguage returns the default segmenter: words containing a non-ASCII
// letter are tagged primary, ASCII-only words secondary.
func NewTwoLanguage(primary, secondary string) *Segmenter {
	return New(TwoLanguage(primary, secondary), secondary)
}

// Segment partitions the script's whitespace-delimited words into maximal
// runs of one tag. Concatenating the runs' words reproduces the script's word
// sequence exactly, no run is empty, and adjacent runs never share a tag. An
// empty or all-whitespace script yields no runs.
func (s *Segmenter) Segment(script string) []models.LanguageRun {
	words := strings.Fields(script)
	if len(words) == 0 {
		return nil
	}

	var (
		runs    []models.LanguageRun
		leading []string // neutral words seen before the first classified word
	)

	for _, word := range words {
		tag, ok := s.classify(word)

		if !ok {
			if len(runs) == 0 {
				leading = append(leading, word)
			} else {
				last := &runs[len(runs)-1]
				last.Words = append(last.Words, word)
			}
			continue
		}

		if len(runs) > 0 && runs[len(runs)-1].Language == tag {
			last := &runs[len(runs)-1]
			last.Words = append(last.Words, word)
			continue
		}

		run := models.LanguageRun{Language: tag}
		if len(runs) == 0 && len(leading) > 0 {
			run.Words = append(run.Words, leading...)
			leading = nil
		}
		run.Words = append(run.Words, word)
		runs = append(runs, run)
	}

	if len(runs) == 0 {
		runs = append(runs, models.LanguageRun{Language: s.neutral, Words: leading})
	}

	return runs
}

// Segment splits script with the default Hindi/English segmenter.
func Segment(script string) []models.LanguageRun {
	return NewTwoLanguage("hi", "en").Segment(script)
}
