package segment

import (
	"unicode"

	"github.com/samber/lo"
)

// TwoLanguage tags a word primary if any of its letters is outside ASCII,
// secondary if it has only ASCII letters, and neutral if it has no letters.
func TwoLanguage(primary, secondary string) Classifier {
	return func(word string) (string, bool) {
		hasLetter := false
		for _, r := range word {
			if !unicode.IsLetter(r) {
				continue
			}
			if r > unicode.MaxASCII {
				return primary, true
			}
			hasLetter = true
		}
		if hasLetter {
			return secondary, true
		}
		return "", false
	}
}

// ScriptTable maps a language tag to the Unicode script its words are
// written in.
type ScriptTable struct {
	Tag   string
	Table *unicode.RangeTable
}

// DefaultScripts covers the languages the channels currently publish in.
var DefaultScripts = []ScriptTable{
	{Tag: "hi", Table: unicode.Devanagari},
	{Tag: "en", Table: unicode.Latin},
	{Tag: "ar", Table: unicode.Arabic},
	{Tag: "zh", Table: unicode.Han},
	{Tag: "ru", Table: unicode.Cyrillic},
	{Tag: "bn", Table: unicode.Bengali},
	{Tag: "ta", Table: unicode.Tamil},
}

// UnicodeScript tags a word by the script that most of its letters belong
// to. Words with no letters, or only letters from unlisted scripts, are
// neutral. Ties go to the earlier entry in scripts.
func UnicodeScript(scripts []ScriptTable) Classifier {
	return func(word string) (string, bool) {
		counts := make([]int, len(scripts))
		for _, r := range word {
			if !unicode.IsLetter(r) {
				continue
			}
			for i, s := range scripts {
				if unicode.Is(s.Table, r) {
					counts[i]++
					break
				}
			}
		}

		best := lo.Max(counts)
		if best == 0 {
			return "", false
		}
		return scripts[lo.IndexOf(counts, best)].Tag, true
	}
}

// ForName builds the segmenter for a configured classifier name, falling
// back to the two-language rule.
func ForName(name, primary, secondary string) *Segmenter {
	if name == "unicode-script" {
		return New(UnicodeScript(DefaultScripts), secondary)
	}
	return NewTwoLanguage(primary, secondary)
}
