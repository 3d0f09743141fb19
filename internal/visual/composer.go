// Package visual renders the single still frame shown for the whole short.
package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	Width  = services.OutputWidth
	Height = services.OutputHeight

	DefaultHeading = "Tech Short:"
	visualFile     = "visual.png"

	minSourceSide = 64
)

var (
	backgroundColor = color.RGBA{R: 30, G: 30, B: 60, A: 255}
	stripeColor     = color.RGBA{R: 42, G: 42, B: 84, A: 255}
	scrimColor      = color.NRGBA{A: 150}
)

var errImageTooSmall = errors.New("image too small")

type Composer struct {
	providers []services.ImageProvider
	fontPath  string
	heading   string
	timeout   time.Duration
	log       *zap.Logger
}

// NewComposer builds a composer that tries providers in order. fontPath is
// the TTF used on the provider path; when it cannot be loaded the procedural
// path is taken.
func NewComposer(providers []services.ImageProvider, fontPath string, timeout time.Duration, log *zap.Logger) *Composer {
	return &Composer{
		providers: providers,
		fontPath:  fontPath,
		heading:   DefaultHeading,
		timeout:   timeout,
		log:       logger.Named(log, "visual"),
	}
}

// Compose always returns a VisualAsset. Provider, decode and font problems
// are logged and answered with the procedural background.
func (c *Composer) Compose(ctx context.Context, topic models.Topic, dir string) models.VisualAsset {
	canvas, source := c.background(ctx, topic)

	fonts, err := loadFonts(c.fontPath)
	if err != nil {
		if source == models.VisualSourceProvider {
			c.log.Warn("font unavailable, using procedural background", zap.String("font", c.fontPath), zap.Error(err))
		}
		canvas, source = procedural(), models.VisualSourceProcedural
		fonts = builtinFonts()
	}
	defer fonts.Close()

	if source == models.VisualSourceProvider {
		darken(canvas)
	}
	drawTitleCard(canvas, fonts, c.heading, topic.Text)

	path := filepath.Join(dir, visualFile)
	err = writePNG(path, canvas)
	if err != nil && source == models.VisualSourceProvider {
		c.log.Warn("failed to write provider visual, retrying procedural", zap.String("path", path), zap.Error(err))
		canvas, source = procedural(), models.VisualSourceProcedural
		drawTitleCard(canvas, fonts, c.heading, topic.Text)
		err = writePNG(path, canvas)
	}
	if err != nil {
		// An unwritable workspace leaves Path empty; assembly reports it.
		c.log.Error("failed to write visual", zap.String("path", path), zap.Error(err))
		return models.VisualAsset{Width: Width, Height: Height, Source: source}
	}

	c.log.Info("visual composed", zap.String("source", string(source)))
	return models.VisualAsset{Path: path, Width: Width, Height: Height, Source: source}
}

// background returns the first provider image that decodes, cover-cropped to
// the portrait canvas, or the procedural canvas.
func (c *Composer) background(ctx context.Context, topic models.Topic) (*image.RGBA, models.VisualSource) {
	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}
		img, err := c.fetch(ctx, p, topic.Text)
		if err != nil {
			c.log.Warn("image provider failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		c.log.Debug("image fetched", zap.String("provider", p.Name()), zap.Stringer("bounds", img.Bounds()))
		return cover(img), models.VisualSourceProvider
	}
	return procedural(), models.VisualSourceProcedural
}

func (c *Composer) fetch(ctx context.Context, p services.ImageProvider, query string) (image.Image, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := p.FetchImage(callCtx, query)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := img.Bounds()
	if b.Dx() < minSourceSide || b.Dy() < minSourceSide {
		return nil, fmt.Errorf("%w: %dx%d", errImageTooSmall, b.Dx(), b.Dy())
	}
	return img, nil
}

// cover scales src to fill the canvas and crops the overflow evenly.
func cover(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())

	scale := max(float64(Width)/sw, float64(Height)/sh)
	cw, ch := float64(Width)/scale, float64(Height)/scale
	x0 := sb.Min.X + int((sw-cw)/2)
	y0 := sb.Min.Y + int((sh-ch)/2)
	crop := image.Rect(x0, y0, x0+int(cw), y0+int(ch))

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// procedural draws the fixed background: a solid field with diagonal stripes.
func procedural() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	const period, band = 96, 28
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if (x+y)%period < band {
				img.SetRGBA(x, y, stripeColor)
			}
		}
	}
	return img
}

// darken lays a translucent scrim over the band holding the title text.
func darken(img *image.RGBA) {
	band := image.Rect(0, Height/3, Width, Height*2/3)
	draw.Draw(img, band, image.NewUniform(scrimColor), image.Point{}, draw.Over)
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
