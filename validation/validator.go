// Package validation checks user input before it reaches the pipeline:
// medicine names, uploaded prescription images and sitemap URLs.
package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
)

// Limits on request content
const (
	MaxNameLength      = 100
	MaxNameWords       = 8
	MaxFieldLength     = 200
	MaxMedicinesPerReq = 20
)

var (
	// Letters in any script, digits and the punctuation found in drug names
	nameRegex = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-\.\+'/%(),]+$`)

	// Substring checks are cheaper than one big regex
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "@import",
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(",
		"; ", "| ", "& ", "`", "$(", "${",
		"../", "..\\", "%2e%2e", "file://",
		"{$ne:", "{$gt:", "{$where:",
	}

	imageTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
		"image/bmp":  true,
	}
)

// Validator implements interfaces.InputValidator
type Validator struct{}

var _ interfaces.InputValidator = (*Validator)(nil)

// NewValidator creates a new input validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateMedicineName checks a single medicine name
func (v *Validator) ValidateMedicineName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("medicine name cannot be empty")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("medicine name is not valid UTF-8")
	}
	if utf8.RuneCountInString(trimmed) < 2 {
		return fmt.Errorf("medicine name too short: minimum 2 characters")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return fmt.Errorf("medicine name too long: maximum %d characters", MaxNameLength)
	}
	if len(strings.Fields(trimmed)) > MaxNameWords {
		return fmt.Errorf("medicine name too complex: maximum %d words allowed", MaxNameWords)
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("medicine name contains potentially dangerous content")
		}
	}

	if !nameRegex.MatchString(trimmed) {
		return fmt.Errorf("medicine name contains invalid characters")
	}
	if hasExcessiveRepetition(trimmed) {
		return fmt.Errorf("medicine name contains excessive character repetition")
	}
	return nil
}

// ValidateMedicines checks a generic-alternatives request body
func (v *Validator) ValidateMedicines(medicines []entities.Medicine) error {
	if len(medicines) == 0 {
		return fmt.Errorf("at least one medicine is required")
	}
	if len(medicines) > MaxMedicinesPerReq {
		return fmt.Errorf("too many medicines: maximum %d per request", MaxMedicinesPerReq)
	}

	for i, m := range medicines {
		if err := v.ValidateMedicineName(m.BrandName); err != nil {
			return fmt.Errorf("medicine %d: %w", i, err)
		}
		for field, value := range map[string]*string{"dosage": m.Dosage, "frequency": m.Frequency, "duration": m.Duration} {
			if value != nil && utf8.RuneCountInString(*value) > MaxFieldLength {
				return fmt.Errorf("medicine %d: %s too long: maximum %d characters", i, field, MaxFieldLength)
			}
		}
	}
	return nil
}

// ValidateImage sniffs the upload and returns its content type
func (v *Validator) ValidateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	contentType := http.DetectContentType(data)
	if !imageTypes[contentType] {
		return contentType, fmt.Errorf("file must be an image, got %s", contentType)
	}
	return contentType, nil
}

// ValidateURL accepts absolute http(s) URLs only
func (v *Validator) ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// hasExcessiveRepetition reports the same byte more than 10 times in a row
func hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
