// Package analyzer chains preprocessing, OCR and medication extraction
// into a single prescription analysis.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/preprocessing"
)

// ErrNoText means every OCR attempt came back empty
var ErrNoText = errors.New("could not extract text from the image")

// Analyzer implements interfaces.PrescriptionAnalyzer
type Analyzer struct {
	preprocessor interfaces.Preprocessor
	recognizer   interfaces.TextRecognizer
	extractor    interfaces.MedicationExtractor
}

var _ interfaces.PrescriptionAnalyzer = (*Analyzer)(nil)

// New wires the three pipeline stages
func New(p interfaces.Preprocessor, r interfaces.TextRecognizer, e interfaces.MedicationExtractor) *Analyzer {
	return &Analyzer{preprocessor: p, recognizer: r, extractor: e}
}

// Analyze decodes the image and returns its text with the medicines found
// in it. Errors wrap preprocessing.ErrInvalidImage or ErrNoText.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader) (*entities.PrescriptionResponse, error) {
	start := time.Now()

	img, err := preprocessing.Decode(r)
	if err != nil {
		return nil, err
	}

	variants := a.preprocessor.Process(img)
	text := a.recognizer.Recognize(ctx, variants)
	if text == "" {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", ctx.Err())
		}
		return nil, ErrNoText
	}

	medicines := a.extractor.Extract(ctx, text)
	if medicines == nil {
		medicines = []entities.Medicine{}
	}

	logging.Info("Prescription analyzed",
		"variants", len(variants),
		"text_length", len(text),
		"medicines", len(medicines),
		"duration", time.Since(start).String(),
	)
	return &entities.PrescriptionResponse{OriginalText: text, Medicines: medicines}, nil
}
