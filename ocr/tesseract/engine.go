// Package tesseract wraps a local Tesseract engine as an OCR provider.
// It needs libtesseract at build time (cgo).
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/otiai10/gosseract/v2"
)

// Engine owns one Tesseract client. Calls are serialized because the
// underlying handle is not safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	closed bool
}

var _ interfaces.OCRProvider = (*Engine)(nil)

// New creates an engine for language (e.g. "eng"). The caller must Close it.
func New(language string) (*Engine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract language %q: %w", language, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract page segmentation mode: %w", err)
	}
	return &Engine{client: client}, nil
}

func (e *Engine) Name() string {
	return config.OCRMethodTesseract
}

func (e *Engine) Ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("tesseract engine closed")
	}
	return nil
}

// ExtractText runs Tesseract over img
func (e *Engine) ExtractText(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", fmt.Errorf("tesseract engine closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image into tesseract: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the engine
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.client.Close()
}
