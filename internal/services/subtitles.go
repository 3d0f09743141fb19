package services

import (
	"fmt"
	"math"
	"os"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Word-highlight ASS captions
//
// Words are shown in small chunks with the currently spoken word outlined in
// a purple "pill". Synthesized clips carry no word timings, so each run's
// words are spread across the run's window on the track in proportion to
// their length.
// ---------------------------------------------------------------------------

const (
	wordsPerChunk = 4

	// fontconfig substitutes a face for scripts DejaVu lacks.
	subtitleFontName = "DejaVu Sans"
	subtitleFontSize = 62

	// &HAABBGGRR
	assColorWhite     = "&H00FFFFFF" // pure white
	assColorBlack     = "&H00000000" // pure black (for outline)
	assColorPurple    = "&H00CC3299" // #9932CC
	assColorSemiBlack = "&H80000000" // 50% transparent black (for shadow)

	outlineNormal    = 3
	outlineHighlight = 8

	// Distance from the bottom on the 1920-high canvas.
	subtitleMarginV = 260
)

// WordTimestamp is a single word with its timing on the track, in seconds.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// CaptionSegment is one voiced run placed on the track timeline.
type CaptionSegment struct {
	Text     string
	Start    float64
	Duration float64
}

// SpreadWords assigns every word of every segment a slot inside the
// segment's window, weighted by rune count. Segments with no words or no
// duration contribute nothing.
func SpreadWords(segments []CaptionSegment) []WordTimestamp {
	var out []WordTimestamp
	for _, seg := range segments {
		words := strings.Fields(seg.Text)
		if len(words) == 0 || seg.Duration <= 0 {
			continue
		}
		total := 0
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		cursor := seg.Start
		for i, w := range words {
			span := seg.Duration * float64(utf8.RuneCountInString(w)) / float64(total)
			end := cursor + span
			if i == len(words)-1 {
				end = seg.Start + seg.Duration
			}
			out = append(out, WordTimestamp{Word: w, Start: cursor, End: end})
			cursor = end
		}
	}
	return out
}

// assHeader declares a 1080x1920 canvas and the single Default style:
// bold white text, black outline and a translucent shadow, bottom-centred.
const assHeader = `[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
WrapStyle: 0
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// WriteASSCaptions writes an ASS caption file for words. Each chunk gets one
// dialogue line per word, lasting until the next word starts, with that word
// highlighted.
func WriteASSCaptions(words []WordTimestamp, outputPath string) error {
	if len(words) == 0 {
		return fmt.Errorf("no words to caption")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, assHeader,
		subtitleFontName, subtitleFontSize,
		assColorWhite, assColorWhite, assColorBlack, assColorSemiBlack,
		outlineNormal, subtitleMarginV)

	for _, chunk := range chunkWords(words, wordsPerChunk) {
		for i, word := range chunk {
			end := word.End
			if i+1 < len(chunk) {
				end = chunk[i+1].Start
			}
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(word.Start), formatASSTime(end), highlightChunk(chunk, i))
		}
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write captions: %w", err)
	}
	return nil
}

// chunkWords splits words into display groups of at most size, closing a
// group early after sentence punctuation (including the danda) once it holds
// two words.
func chunkWords(words []WordTimestamp, size int) [][]WordTimestamp {
	var chunks [][]WordTimestamp
	start := 0
	for i, w := range words {
		n := i - start + 1
		if n >= size || (n >= 2 && strings.ContainsAny(w.Word, ".!?।")) {
			chunks = append(chunks, words[start:i+1])
			start = i + 1
		}
	}
	if start < len(words) {
		chunks = append(chunks, words[start:])
	}
	return chunks
}

// highlightChunk renders the chunk upper-cased with the active word wrapped
// in a thick purple outline, e.g. "NEW {\3c&H00CC3299\bord8}AI{\r} CHIP".
func highlightChunk(chunk []WordTimestamp, active int) string {
	parts := make([]string, 0, len(chunk))
	for i, w := range chunk {
		word := strings.ToUpper(strings.TrimSpace(w.Word))
		if word == "" {
			continue
		}
		if i == active {
			word = fmt.Sprintf("{\\3c%s\\bord%d}%s{\\r}", assColorPurple, outlineHighlight, word)
		}
		parts = append(parts, word)
	}
	return strings.Join(parts, " ")
}

// formatASSTime renders seconds as H:MM:SS.CC. Negative input clamps to zero.
func formatASSTime(seconds float64) string {
	cs := int(math.Round(math.Max(seconds, 0) * 100))
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}
