package visual

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	headingSize = 80
	topicSize   = 68
	textMargin  = 90
	lineSpacing = 1.25
)

type fontSet struct {
	heading font.Face
	body    font.Face
}

func (f fontSet) Close() {
	f.heading.Close()
	f.body.Close()
}

func loadFonts(path string) (fontSet, error) {
	if path == "" {
		return fontSet{}, fmt.Errorf("no font configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fontSet{}, err
	}
	return newFontSet(data)
}

// builtinFonts uses the embedded Go Bold face, which cannot fail to parse.
func builtinFonts() fontSet {
	fs, err := newFontSet(gobold.TTF)
	if err != nil {
		panic(fmt.Sprintf("embedded font: %v", err))
	}
	return fs
}

func newFontSet(data []byte) (fontSet, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return fontSet{}, fmt.Errorf("parse font: %w", err)
	}
	heading, err := opentype.NewFace(f, &opentype.FaceOptions{Size: headingSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return fontSet{}, err
	}
	body, err := opentype.NewFace(f, &opentype.FaceOptions{Size: topicSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		heading.Close()
		return fontSet{}, err
	}
	return fontSet{heading: heading, body: body}, nil
}

// drawTitleCard centres the heading and the wrapped topic on the canvas.
func drawTitleCard(img *image.RGBA, fonts fontSet, heading, topic string) {
	maxWidth := fixed.I(Width - 2*textMargin)

	type line struct {
		text string
		face font.Face
	}
	lines := []line{{heading, fonts.heading}}
	for _, l := range wrapText(fonts.body, topic, maxWidth) {
		lines = append(lines, line{l, fonts.body})
	}

	heights := make([]int, len(lines))
	total := 0
	for i, l := range lines {
		heights[i] = int(float64(l.face.Metrics().Height.Ceil()) * lineSpacing)
		total += heights[i]
	}

	y := (Height - total) / 2
	for i, l := range lines {
		d := &font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: l.face}
		adv := d.MeasureString(l.text)
		x := (Width - adv.Ceil()) / 2
		if x < 0 {
			x = 0
		}
		d.Dot = fixed.P(x, y+l.face.Metrics().Ascent.Ceil())
		d.DrawString(l.text)
		y += heights[i]
	}
}

// wrapText breaks text into lines no wider than maxWidth. A word wider than
// maxWidth gets a line of its own.
func wrapText(face font.Face, text string, maxWidth fixed.Int26_6) []string {
	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && font.MeasureString(face, candidate) > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
