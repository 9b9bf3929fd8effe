package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/interfaces"
)

const (
	llamaPrompt = `Extract ALL text from this prescription image exactly as written, including doctor name, patient details, medicine names, dosages, frequencies and instructions. Preserve the line structure. Return only the extracted text, no commentary.`

	gpt4System = `You are an expert at reading doctors' handwriting on medical prescriptions. Transcribe the text faithfully, keeping medicine names, strengths and dosing instructions exactly as written.`
	gpt4Prompt = `Read this prescription and return all of its text. Return only the text.`
)

// VisionProvider does OCR by asking a vision-capable chat model to
// transcribe the image.
type VisionProvider struct {
	name        string
	client      interfaces.ChatClient
	model       string
	system      string
	prompt      string
	maxTokens   int64
	jpegQuality int
}

var _ interfaces.OCRProvider = (*VisionProvider)(nil)

// NewLlamaProvider reads prescriptions with a Llama vision model
func NewLlamaProvider(client interfaces.ChatClient, model string) *VisionProvider {
	return &VisionProvider{
		name:        config.OCRMethodLlama,
		client:      client,
		model:       model,
		prompt:      llamaPrompt,
		maxTokens:   1000,
		jpegQuality: 90,
	}
}

// NewGPT4Provider reads prescriptions with an OpenAI vision model
func NewGPT4Provider(client interfaces.ChatClient, model string) *VisionProvider {
	return &VisionProvider{
		name:        config.OCRMethodGPT4,
		client:      client,
		model:       model,
		system:      gpt4System,
		prompt:      gpt4Prompt,
		maxTokens:   1000,
		jpegQuality: 90,
	}
}

func (p *VisionProvider) Name() string {
	return p.name
}

func (p *VisionProvider) Ready() error {
	if p.client == nil {
		return fmt.Errorf("%s: no client", p.name)
	}
	return p.client.Ready()
}

// ExtractText sends img as a JPEG data URI and returns the model's reply
func (p *VisionProvider) ExtractText(ctx context.Context, img image.Image) (string, error) {
	uri, err := DataURI(img, p.jpegQuality)
	if err != nil {
		return "", err
	}

	text, err := p.client.Complete(ctx, interfaces.ChatRequest{
		Model:       p.model,
		System:      p.system,
		Prompt:      p.prompt,
		Temperature: 0.1,
		MaxTokens:   p.maxTokens,
		Images:      []string{uri},
	})
	if err != nil {
		return "", fmt.Errorf("%s vision request: %w", p.name, err)
	}
	return strings.TrimSpace(text), nil
}

// DataURI encodes img as a base64 JPEG data URI
func DataURI(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
