package preprocessing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/giygas/prescription-analyzer/entities"
)

// testImage draws a dark horizontal stroke on a light background
func testImage(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{230, 225, 220, 255})
	for x := w / 4; x < 3*w/4; x++ {
		for y := h/2 - 1; y <= h/2+1; y++ {
			img.Set(x, y, color.NRGBA{20, 20, 40, 255})
		}
	}
	return img
}

func TestProcessProducesAllVariants(t *testing.T) {
	variants := New().Process(testImage(40, 30))

	want := entities.VariantOrder
	if got := variants.Names(); len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, name := range want {
		img, ok := variants[name]
		if !ok {
			t.Errorf("missing variant %s", name)
			continue
		}
		if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
			t.Errorf("variant %s has size %v", name, img.Bounds())
		}
	}
}

func TestProcessOmitsFailingFilter(t *testing.T) {
	filters := []Filter{
		{Name: entities.VariantGrayscale, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return gray }},
		{Name: entities.VariantThreshold, Apply: func(image.Image, *image.NRGBA) image.Image { panic("kernel exploded") }},
		{Name: entities.VariantDenoised, Apply: func(image.Image, *image.NRGBA) image.Image { return nil }},
		{Name: entities.VariantSharpened, Apply: func(_ image.Image, gray *image.NRGBA) image.Image { return imaging.Sharpen(gray, 1) }},
	}

	variants := New(filters...).Process(testImage(10, 10))

	if _, ok := variants[entities.VariantOriginal]; !ok {
		t.Fatal("original must always be present")
	}
	if _, ok := variants[entities.VariantThreshold]; ok {
		t.Error("panicking filter's variant should be absent")
	}
	if _, ok := variants[entities.VariantDenoised]; ok {
		t.Error("nil-producing filter's variant should be absent")
	}
	got := strings.Join(variants.Names(), ",")
	if got != "original,grayscale,sharpened" {
		t.Errorf("unexpected variants %s", got)
	}
}

func TestProcessEmptyImageKeepsOriginal(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	variants := New().Process(empty)

	if len(variants) != 1 {
		t.Errorf("expected only original for an empty image, got %v", variants.Names())
	}
	if _, ok := variants[entities.VariantOriginal]; !ok {
		t.Error("original must always be present")
	}
}

func TestThresholdIsBinary(t *testing.T) {
	gray := imaging.Grayscale(testImage(30, 30))
	out := adaptiveThreshold(gray, 21, 10)

	for i := 0; i < len(out.Pix); i += 4 {
		if v := out.Pix[i]; v != 0 && v != 255 {
			t.Fatalf("pixel %d has value %d, expected 0 or 255", i/4, v)
		}
	}
	// The stroke is darker than its neighborhood
	if out.Pix[15*out.Stride+15*4] != 0 {
		t.Error("expected the stroke to be foreground")
	}
	if out.Pix[2*out.Stride+2*4] != 255 {
		t.Error("expected background to stay white")
	}
}

func TestMedianFilterRemovesSpeck(t *testing.T) {
	gray := imaging.New(5, 5, color.NRGBA{200, 200, 200, 255})
	gray.Set(2, 2, color.NRGBA{0, 0, 0, 255})

	out := medianFilter(gray)
	if v := out.Pix[2*out.Stride+2*4]; v != 200 {
		t.Errorf("expected isolated speck to be removed, got %d", v)
	}
}

func TestBoostContrastClamps(t *testing.T) {
	gray := imaging.New(1, 1, color.NRGBA{200, 200, 200, 255})
	out := boostContrast(gray, 1.5)
	if out.Pix[0] != 255 {
		t.Errorf("expected clamp to 255, got %d", out.Pix[0])
	}

	gray = imaging.New(1, 1, color.NRGBA{100, 100, 100, 255})
	out = boostContrast(gray, 1.5)
	if out.Pix[0] != 150 {
		t.Errorf("expected 150, got %d", out.Pix[0])
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(8, 6)); err != nil {
		t.Fatal(err)
	}

	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}

	_, err = Decode(strings.NewReader("definitely not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}
