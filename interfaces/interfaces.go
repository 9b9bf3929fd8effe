// Package interfaces defines the contracts between the analyzer's pipeline
// stages so each one can be replaced by a mock in tests.
package interfaces

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"

	"github.com/giygas/prescription-analyzer/entities"
)

// ChatRequest is a single-turn chat completion request
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
	// JSONObject asks the provider to constrain the reply to a JSON object
	JSONObject bool
	// Images are attached to the user message, encoded as data URIs
	Images []string
}

// ChatClient sends chat completions to an OpenAI-compatible provider.
// Ready reports whether the client has the credentials it needs.
type ChatClient interface {
	Ready() error
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// OCRProvider turns an image into text. Implementations must be safe for
// sequential reuse across requests.
type OCRProvider interface {
	Name() string
	Ready() error
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// Preprocessor produces the enhanced variants of an image
type Preprocessor interface {
	Process(img image.Image) entities.ImageVariants
}

// TextRecognizer runs the OCR cascade over a set of variants and returns
// the best text found, possibly empty.
type TextRecognizer interface {
	Recognize(ctx context.Context, variants entities.ImageVariants) string
}

// MedicationExtractor structures OCR text into medicines
type MedicationExtractor interface {
	Extract(ctx context.Context, text string) []entities.Medicine
}

// PrescriptionAnalyzer runs the whole image to medicines pipeline
type PrescriptionAnalyzer interface {
	Analyze(ctx context.Context, r io.Reader) (*entities.PrescriptionResponse, error)
}

// GenericsCache persists resolutions keyed by normalized medicine name
type GenericsCache interface {
	Get(name string) (entities.CacheEntry, bool)
	Set(name string, data json.RawMessage, source entities.Source) error
	Len() int
	Flush() error
	Dirty() bool
}

// DrugLookup finds generic concepts in a structured terminology source.
// An empty result with a nil error means the drug is unknown there.
type DrugLookup interface {
	LookupGenerics(ctx context.Context, name string) ([]entities.DrugConcept, error)
}

// AlternativesResolver resolves medicines to generic alternatives in input order
type AlternativesResolver interface {
	Resolve(ctx context.Context, medicines []entities.Medicine) []entities.MedicineWithAlternatives
}

// MedicineScraper reads pharmacy websites
type MedicineScraper interface {
	MedicineInfo(ctx context.Context, name, sitemapURL string) (*entities.MedicineInfo, error)
	ComparePrices(ctx context.Context, name string) entities.PriceComparison
}

// Scheduler defines the contract for background jobs
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports the service's health along with the HTTP status
// the /health endpoint should answer with.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// InputValidator checks request content before it reaches the pipeline
type InputValidator interface {
	ValidateMedicineName(name string) error
	ValidateMedicines(medicines []entities.Medicine) error
	ValidateImage(data []byte) (contentType string, err error)
	ValidateURL(raw string) error
}

// HTTPHandler defines the contract for HTTP request handlers
type HTTPHandler interface {
	Welcome(w http.ResponseWriter, r *http.Request)
	ProcessPrescription(w http.ResponseWriter, r *http.Request)
	GenericAlternatives(w http.ResponseWriter, r *http.Request)
	MedicineInfo(w http.ResponseWriter, r *http.Request)
	ComparePrices(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
