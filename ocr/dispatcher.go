// Package ocr runs the OCR fallback cascade over preprocessed image
// variants and a set of OCR providers.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
)

// MinTextLength is the trimmed length an OCR result needs to be accepted
const MinTextLength = 10

// Cascade stages
const (
	StagePrimaryBest   = "primary_best_variant"
	StagePrimaryOthers = "primary_other_variants"
	StageAlternateA    = "alternate_a"
	StageAlternateB    = "alternate_b"
	StageLastResort    = "last_resort"
)

// bestVariant is tried first when present
const bestVariant = entities.VariantEdgeEnhanced

// fallbackOrder is the provider preference for the final pick, after the
// primary provider.
var fallbackOrder = []string{config.OCRMethodGPT4, config.OCRMethodLlama, config.OCRMethodTesseract}

// Attempt is one provider call planned by the cascade
type Attempt struct {
	Stage    string
	Provider string
	Variant  string
}

// Dispatcher tries OCR providers over image variants in a fixed order
type Dispatcher struct {
	primary   string
	fallback  bool
	providers map[string]interfaces.OCRProvider
	memo      *Memo
}

var _ interfaces.TextRecognizer = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher. providers are keyed by their Name();
// memo may be nil.
func NewDispatcher(primary string, fallback bool, memo *Memo, providers ...interfaces.OCRProvider) *Dispatcher {
	byName := make(map[string]interfaces.OCRProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	return &Dispatcher{
		primary:   primary,
		fallback:  fallback,
		providers: byName,
		memo:      memo,
	}
}

// Plan returns the attempts the cascade would make for variants, in order
func (d *Dispatcher) Plan(variants entities.ImageVariants) []Attempt {
	best := entities.VariantOriginal
	if _, ok := variants[bestVariant]; ok {
		best = bestVariant
	}

	plan := []Attempt{{Stage: StagePrimaryBest, Provider: d.primary, Variant: best}}
	if !d.fallback {
		return plan
	}

	for _, name := range variants.Names() {
		if name != best {
			plan = append(plan, Attempt{Stage: StagePrimaryOthers, Provider: d.primary, Variant: name})
		}
	}

	alternates := []struct{ stage, provider string }{
		{StageAlternateA, config.OCRMethodGPT4},
		{StageAlternateB, config.OCRMethodLlama},
		{StageLastResort, config.OCRMethodTesseract},
	}
	for _, alt := range alternates {
		if alt.provider != d.primary {
			plan = append(plan, Attempt{Stage: alt.stage, Provider: alt.provider, Variant: entities.VariantOriginal})
		}
	}
	return plan
}

// Acceptable reports whether text has enough content to stop the cascade
func Acceptable(text string) bool {
	return len(strings.TrimSpace(text)) >= MinTextLength
}

// Recognize returns the first acceptable text of the cascade. When nothing
// is acceptable it returns the best partial result, or "".
func (d *Dispatcher) Recognize(ctx context.Context, variants entities.ImageVariants) string {
	original, ok := variants[entities.VariantOriginal]
	if !ok {
		logging.Warn("OCR called without an original image")
		return ""
	}

	var memoKey *MemoKey
	if d.memo != nil {
		key, err := d.memo.Key(original)
		if err != nil {
			logging.Debug("OCR memo disabled for image", "error", err)
		} else if text, hit := d.memo.Get(key); hit {
			logging.Info("OCR result served from memo", "chars", len(text))
			return text
		} else {
			memoKey = &key
		}
	}

	partial := make(map[string]string)
	for _, attempt := range d.Plan(variants) {
		if ctx.Err() != nil {
			logging.Warn("OCR cascade cancelled", "error", ctx.Err())
			break
		}

		text, ok := d.try(ctx, attempt, variants)
		if !ok {
			continue
		}
		if Acceptable(text) {
			text = strings.TrimSpace(text)
			logging.Info("OCR succeeded", "provider", attempt.Provider, "variant", attempt.Variant, "stage", attempt.Stage, "chars", len(text))
			if memoKey != nil {
				d.memo.Put(*memoKey, text)
			}
			return text
		}
		if t := strings.TrimSpace(text); len(t) > len(partial[attempt.Provider]) {
			partial[attempt.Provider] = t
		}
	}

	for _, name := range append([]string{d.primary}, fallbackOrder...) {
		if text := partial[name]; text != "" {
			logging.Warn("No OCR result met the minimum length, using best partial result", "provider", name, "chars", len(text))
			return text
		}
	}

	logging.Warn("All OCR methods failed")
	return ""
}

// try runs one attempt. ok is false when the attempt was skipped.
func (d *Dispatcher) try(ctx context.Context, a Attempt, variants entities.ImageVariants) (string, bool) {
	provider, found := d.providers[a.Provider]
	if !found {
		metrics.OCRAttemptsTotal.WithLabelValues(a.Provider, a.Variant, metrics.OutcomeSkipped).Inc()
		logging.Debug("OCR provider not registered, skipping", "provider", a.Provider)
		return "", false
	}
	if err := provider.Ready(); err != nil {
		metrics.OCRAttemptsTotal.WithLabelValues(a.Provider, a.Variant, metrics.OutcomeSkipped).Inc()
		logging.Debug("OCR provider not ready, skipping", "provider", a.Provider, "reason", err)
		return "", false
	}
	img, found := variants[a.Variant]
	if !found {
		return "", false
	}

	start := time.Now()
	text, err := extract(ctx, provider, img)
	if err != nil {
		metrics.OCRAttemptsTotal.WithLabelValues(a.Provider, a.Variant, metrics.OutcomeError).Inc()
		logging.Warn("OCR attempt failed", "provider", a.Provider, "variant", a.Variant, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", true
	}

	outcome := metrics.OutcomeShort
	if Acceptable(text) {
		outcome = metrics.OutcomeAccepted
	}
	metrics.OCRAttemptsTotal.WithLabelValues(a.Provider, a.Variant, outcome).Inc()
	logging.Debug("OCR attempt finished", "provider", a.Provider, "variant", a.Variant, "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())
	return text, true
}

// extract calls the provider, turning a panic into an error
func extract(ctx context.Context, provider interfaces.OCRProvider, img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", provider.Name(), r)
		}
	}()
	return provider.ExtractText(ctx, img)
}
