// Package preprocessing produces enhanced variants of a prescription photo
// for OCR. Every filter works on the grayscale image and is best-effort.
package preprocessing

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
)

// ErrInvalidImage is returned when an upload cannot be decoded as an image
var ErrInvalidImage = errors.New("invalid image")

// Filter derives one variant. gray is nil when grayscale conversion failed.
type Filter struct {
	Name  string
	Apply func(src image.Image, gray *image.NRGBA) image.Image
}

// Preprocessor runs a fixed list of filters
type Preprocessor struct {
	filters []Filter
}

var _ interfaces.Preprocessor = (*Preprocessor)(nil)

// New returns a preprocessor with the default filters. Tests may pass
// their own.
func New(filters ...Filter) *Preprocessor {
	if len(filters) == 0 {
		filters = DefaultFilters()
	}
	return &Preprocessor{filters: filters}
}

// DefaultFilters returns the six enhancement filters, in order
func DefaultFilters() []Filter {
	return []Filter{
		{Name: entities.VariantGrayscale, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return gray }},
		{Name: entities.VariantContrast, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return boostContrast(gray, 1.5) }},
		{Name: entities.VariantThreshold, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return adaptiveThreshold(gray, 21, 10) }},
		{Name: entities.VariantDenoised, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return medianFilter(gray) }},
		{Name: entities.VariantEdgeEnhanced, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return enhanceEdges(gray, 0.8) }},
		{Name: entities.VariantSharpened, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return imaging.Sharpen(gray, 1.0) }},
	}
}

// Decode reads an uploaded image, applying its EXIF orientation
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return img, nil
}

// Process returns the original image plus every variant whose filter
// succeeded. A failing filter only loses its own variant.
func (p *Preprocessor) Process(img image.Image) entities.ImageVariants {
	variants := entities.ImageVariants{entities.VariantOriginal: img}
	if img == nil {
		return variants
	}

	gray, err := safeGrayscale(img)
	if err != nil {
		logging.Warn("Grayscale conversion failed", "error", err)
	}

	for _, f := range p.filters {
		out, err := apply(f, img, gray)
		if err != nil {
			logging.Warn("Image filter failed, variant omitted", "variant", f.Name, "error", err)
			continue
		}
		if out == nil || out.Bounds().Empty() {
			logging.Warn("Image filter produced no image, variant omitted", "variant", f.Name)
			continue
		}
		variants[f.Name] = out
	}

	logging.Debug("Preprocessed image", "variants", len(variants))
	return variants
}

func safeGrayscale(img image.Image) (gray *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			gray, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return imaging.Grayscale(img), nil
}

func apply(f Filter, src image.Image, gray *image.NRGBA) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if gray == nil {
		return nil, errors.New("grayscale unavailable")
	}
	return f.Apply(src, gray), nil
}
