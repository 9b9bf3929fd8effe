package ocr

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/giygas/prescription-analyzer/entities"
)

// prescriptionPage draws a ruled page with a letterhead and a small
// handwritten mark at (x, y). Pages differing only in the mark position
// carry the same amount of ink.
func prescriptionPage(x, y int) *image.NRGBA {
	page := imaging.New(1200, 1600, color.White)
	ink := color.NRGBA{20, 20, 60, 255}
	for px := 100; px < 1100; px++ {
		for py := 80; py < 140; py++ {
			page.Set(px, py, ink)
		}
	}
	for row := 300; row < 1500; row += 100 {
		for px := 100; px < 1100; px++ {
			page.Set(px, row, ink)
		}
	}
	for i := 0; i < 30; i++ {
		page.Set(x+i, y, ink)
		page.Set(x, y+i, ink)
	}
	return page
}

func TestMemoKeySeparatesNearIdenticalPages(t *testing.T) {
	memo := NewMemo(time.Minute)
	a := prescriptionPage(600, 420)
	b := prescriptionPage(630, 420)

	keyA, err := memo.Key(a)
	if err != nil {
		t.Fatalf("Key(a): %v", err)
	}
	keyB, err := memo.Key(b)
	if err != nil {
		t.Fatalf("Key(b): %v", err)
	}
	if keyA.Digest == keyB.Digest {
		t.Fatal("different pixels must give different digests")
	}

	memo.Put(keyA, "Tab Metformin 500mg twice daily")
	if text, hit := memo.Get(keyB); hit {
		t.Errorf("second page served the first page's text %q", text)
	}

	again, err := memo.Key(imaging.Clone(a))
	if err != nil {
		t.Fatalf("Key(copy): %v", err)
	}
	if text, hit := memo.Get(again); !hit || text != "Tab Metformin 500mg twice daily" {
		t.Errorf("identical pixels should hit, got %q, %v", text, hit)
	}
}

func TestRecognizeDoesNotShareTextBetweenPrescriptions(t *testing.T) {
	rec := &recorder{}
	names := map[image.Image]string{}
	llama := &mockProvider{name: "llama", rec: rec, names: names, texts: map[string]string{
		"first":  "Tab Metformin 500mg twice daily",
		"second": "Tab Amlodipine 5mg once daily",
	}}
	d := NewDispatcher("llama", false, NewMemo(time.Minute), llama)

	first := prescriptionPage(600, 420)
	second := prescriptionPage(630, 420)
	names[first] = "first"
	names[second] = "second"

	got1 := d.Recognize(context.Background(), entities.ImageVariants{entities.VariantOriginal: first})
	got2 := d.Recognize(context.Background(), entities.ImageVariants{entities.VariantOriginal: second})

	if got1 != "Tab Metformin 500mg twice daily" {
		t.Errorf("first prescription: got %q", got1)
	}
	if got2 != "Tab Amlodipine 5mg once daily" {
		t.Errorf("second prescription: got %q", got2)
	}
	if len(rec.calls) != 2 {
		t.Errorf("expected the cascade to run for both uploads, got %d calls", len(rec.calls))
	}
}
