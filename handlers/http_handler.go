// Package handlers provides the HTTP endpoints of the prescription analyzer:
// image upload, generic alternatives, medicine information and prices.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/prescription-analyzer/analyzer"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/preprocessing"
	"github.com/giygas/prescription-analyzer/scraper"
	"github.com/go-chi/chi/v5"
)

// WelcomeMessage is returned by GET /
const WelcomeMessage = "Welcome to the Prescription Analyzer API"

// multipart parts above this size are spooled to disk
const multipartMemory = 8 << 20

// MultipartOverhead is the room allowed around an upload for multipart
// boundaries and part headers
const MultipartOverhead = 64 << 10

// MaxBodySize is the request body limit for an image of maxUpload bytes
func MaxBodySize(maxUpload int64) int64 {
	return maxUpload + MultipartOverhead
}

// Dependencies groups what the handlers need
type Dependencies struct {
	Analyzer   interfaces.PrescriptionAnalyzer
	Resolver   interfaces.AlternativesResolver
	Scraper    interfaces.MedicineScraper
	Health     interfaces.HealthChecker
	Validator  interfaces.InputValidator
	OCRMethod  string
	MaxUpload  int64 // Bytes accepted for one prescription image
	SitemapURL string
}

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	deps Dependencies
}

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(deps Dependencies) *HTTPHandlerImpl {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 10 << 20
	}
	return &HTTPHandlerImpl{deps: deps}
}

// RespondWithJSON writes payload as JSON with the given status code
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write response", "error", err)
	}
}

// RespondWithError writes the {error, message, code} envelope
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// Welcome answers GET /
func (h *HTTPHandlerImpl) Welcome(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

// ProcessPrescription answers POST /process-prescription with the text and
// medicines read from the multipart "file" image.
func (h *HTTPHandlerImpl) ProcessPrescription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize(h.deps.MaxUpload))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		RespondWithError(w, http.StatusBadRequest, "Expected a multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.deps.MaxUpload+1))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	if int64(len(data)) > h.deps.MaxUpload {
		RespondWithError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image too large. Maximum allowed size is %d bytes", h.deps.MaxUpload))
		return
	}

	if _, err := h.deps.Validator.ValidateImage(data); err != nil {
		logging.Warn("Rejected upload", "filename", header.Filename, "error", err)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.deps.Analyzer.Analyze(r.Context(), bytes.NewReader(data))
	switch {
	case err == nil:
		RespondWithJSON(w, http.StatusOK, result)
	case errors.Is(err, preprocessing.ErrInvalidImage):
		RespondWithError(w, http.StatusBadRequest, "File is not a readable image")
	case errors.Is(err, analyzer.ErrNoText):
		RespondWithError(w, http.StatusUnprocessableEntity, "Could not extract text from the image")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondWithError(w, http.StatusServiceUnavailable, "Request cancelled before analysis finished")
	default:
		logging.Error("Prescription analysis failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Error processing image")
	}
}

// GenericAlternatives answers POST /api/generic-alternatives
func (h *HTTPHandlerImpl) GenericAlternatives(w http.ResponseWriter, r *http.Request) {
	var medicines []entities.Medicine
	if err := json.NewDecoder(r.Body).Decode(&medicines); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Body must be a JSON array of medicines")
		return
	}
	if err := h.deps.Validator.ValidateMedicines(medicines); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondWithJSON(w, http.StatusOK, h.deps.Resolver.Resolve(r.Context(), medicines))
}

type medicineInfoRequest struct {
	Name       string `json:"name"`
	SitemapURL string `json:"sitemap_url"`
}

// MedicineInfo answers POST /medicine-info
func (h *HTTPHandlerImpl) MedicineInfo(w http.ResponseWriter, r *http.Request) {
	var req medicineInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.deps.Validator.ValidateMedicineName(req.Name); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	sitemapURL := strings.TrimSpace(req.SitemapURL)
	if sitemapURL == "" {
		sitemapURL = h.deps.SitemapURL
	} else if err := h.deps.Validator.ValidateURL(sitemapURL); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.deps.Scraper.MedicineInfo(r.Context(), strings.TrimSpace(req.Name), sitemapURL)
	if errors.Is(err, scraper.ErrNoLink) {
		RespondWithError(w, http.StatusNotFound, "No link found for medicine: "+req.Name)
		return
	}
	if err != nil {
		logging.Error("Medicine info failed", "medicine", req.Name, "error", err)
		RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, info)
}

// ComparePrices answers GET /prices/{medicine}
func (h *HTTPHandlerImpl) ComparePrices(w http.ResponseWriter, r *http.Request) {
	medicine := strings.TrimSpace(chi.URLParam(r, "medicine"))
	if err := h.deps.Validator.ValidateMedicineName(medicine); err != nil {
		logging.Warn("Unusual user input", "medicine", medicine)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondWithJSON(w, http.StatusOK, h.deps.Scraper.ComparePrices(r.Context(), medicine))
}

// HealthResponse keeps the JSON field order stable
type HealthResponse struct {
	Status    string         `json:"status"`
	OCRMethod string         `json:"ocr_method"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// HealthCheck answers GET /health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.deps.Health.HealthCheck()
	RespondWithJSON(w, httpStatus, HealthResponse{
		Status:    status,
		OCRMethod: h.deps.OCRMethod,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
}
