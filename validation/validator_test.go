package validation

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/giygas/prescription-analyzer/entities"
)

func TestValidateMedicineName(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple brand", "Crocin", false},
		{"with strength", "Dolo 650", false},
		{"combination", "Amoxicillin/Clavulanate 625mg", false},
		{"accented", "Doliprane Codéine", false},
		{"devanagari", "क्रोसिन", false},
		{"percent", "Betadine 5%", false},
		{"empty", "", true},
		{"spaces only", "   ", true},
		{"too short", "A", true},
		{"too long", strings.Repeat("ab", 51), true},
		{"too many words", "a1 b2 c3 d4 e5 f6 g7 h8 i9", true},
		{"script tag", "<script>alert(1)</script>", true},
		{"sql injection", "x' or 1=1", true},
		{"command injection", "aspirin; rm -rf", true},
		{"path traversal", "../etc/passwd", true},
		{"invalid characters", "aspirin@home", true},
		{"null byte", "abc\x00def", true},
		{"repetition", "aaaaaaaaaaaaaaa", true},
		{"invalid utf8", "abc\xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateMedicineName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMedicineName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMedicines(t *testing.T) {
	validator := NewValidator()

	tooMany := make([]entities.Medicine, MaxMedicinesPerReq+1)
	for i := range tooMany {
		tooMany[i] = entities.Medicine{BrandName: "Crocin"}
	}

	tests := []struct {
		name      string
		medicines []entities.Medicine
		wantErr   bool
	}{
		{"single", []entities.Medicine{{BrandName: "Crocin", Dosage: entities.StringPtr("500mg")}}, false},
		{"unknown medication placeholder", []entities.Medicine{{BrandName: entities.UnknownMedication}}, false},
		{"empty list", nil, true},
		{"too many", tooMany, true},
		{"bad name", []entities.Medicine{{BrandName: "Crocin"}, {BrandName: ""}}, true},
		{"long dosage", []entities.Medicine{{BrandName: "Crocin", Dosage: entities.StringPtr(strings.Repeat("x", MaxFieldLength+1))}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateMedicines(tt.medicines)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMedicines() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateImage(t *testing.T) {
	validator := NewValidator()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}

	contentType, err := validator.ValidateImage(buf.Bytes())
	if err != nil || contentType != "image/png" {
		t.Errorf("expected png to pass, got %q %v", contentType, err)
	}

	for name, data := range map[string][]byte{
		"empty": nil,
		"text":  []byte("Paracetamol 500mg twice daily"),
		"pdf":   []byte("%PDF-1.4\n%âãÏÓ\n"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := validator.ValidateImage(data); err == nil {
				t.Errorf("expected %s to be rejected", name)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://www.1mg.com/sitemap_generics_1.xml", false},
		{"http://localhost:8080/sitemap.xml", false},
		{"file:///etc/passwd", true},
		{"ftp://example.com/sitemap.xml", true},
		{"/sitemap.xml", true},
		{"https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := validator.ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
