// Package imaging prepares user photos for identification: decode, orient,
// downscale and re-encode as JPEG.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 800
	DefaultQuality      = 80

	// DefaultMaxPixels bounds the decoded size of an input image.
	DefaultMaxPixels = 50_000_000
)

// ErrTooManyPixels is returned for images whose decoded size exceeds the pixel budget.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// Options control the output size and quality.
type Options struct {
	MaxDimension int
	Quality      int
	MaxPixels    int
}

// DefaultOptions returns the 800px, quality 80 settings.
func DefaultOptions() Options {
	return Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality, MaxPixels: DefaultMaxPixels}
}

// Result is a re-encoded image.
type Result struct {
	JPEG   []byte
	Width  int
	Height int
	Scale  float64
}

// Base64 returns the standard base64 text of the JPEG, without a data-URL prefix.
func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.JPEG)
}

// ScaleFactor is min(max/width, max/height) capped at 1 so small images are never upscaled.
func ScaleFactor(width, height, maxDimension int) float64 {
	if width <= 0 || height <= 0 || maxDimension <= 0 {
		return 1
	}
	scale := math.Min(float64(maxDimension)/float64(width), float64(maxDimension)/float64(height))
	return math.Min(scale, 1)
}

// GetImageOrientation extracts the EXIF orientation, defaulting to 1
func GetImageOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// CorrectImageOrientation returns img transformed so that orientation 1 applies.
func CorrectImageOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var nx, ny int
			switch orientation {
			case 2: // flip horizontal
				nx, ny = w-1-x, y
			case 3: // rotate 180
				nx, ny = w-1-x, h-1-y
			case 4: // flip vertical
				nx, ny = x, h-1-y
			case 5: // transpose
				nx, ny = y, x
			case 6: // rotate 90 clockwise
				nx, ny = h-1-y, x
			case 7: // transverse
				nx, ny = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				nx, ny = y, w-1-x
			}
			out.Set(nx, ny, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Compress decodes data (JPEG, PNG or WebP), applies the EXIF orientation,
// scales it so the longer edge fits opts.MaxDimension and re-encodes it as JPEG.
// The image is always re-encoded, even when no scaling is needed.
func Compress(data []byte, opts Options) (*Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	// Check the header before allocating the full image.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	orientation := 1
	if format == "jpeg" {
		orientation = GetImageOrientation(data)
		img = CorrectImageOrientation(img, orientation)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	scale := ScaleFactor(width, height, opts.MaxDimension)
	newWidth := max(1, int(math.Round(float64(width)*scale)))
	newHeight := max(1, int(math.Round(float64(height)*scale)))

	// JPEG has no alpha; transparent areas become white.
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode compressed image: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"format":      format,
		"orientation": orientation,
		"original":    fmt.Sprintf("%dx%d", width, height),
		"compressed":  fmt.Sprintf("%dx%d", newWidth, newHeight),
		"bytes_in":    len(data),
		"bytes_out":   buf.Len(),
		"quality":     opts.Quality,
	}).Debug("Image compressed")

	return &Result{JPEG: buf.Bytes(), Width: newWidth, Height: newHeight, Scale: scale}, nil
}
