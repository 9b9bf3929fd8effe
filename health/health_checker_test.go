package health

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
)

type mockProvider struct {
	name string
	err  error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Ready() error { return m.err }
func (m *mockProvider) ExtractText(ctx context.Context, img image.Image) (string, error) {
	return "", nil
}

type mockCache struct {
	entries int
	dirty   bool
}

func (m *mockCache) Get(name string) (entities.CacheEntry, bool) { return entities.CacheEntry{}, false }
func (m *mockCache) Set(name string, data json.RawMessage, source entities.Source) error {
	return nil
}
func (m *mockCache) Len() int     { return m.entries }
func (m *mockCache) Flush() error { return nil }
func (m *mockCache) Dirty() bool  { return m.dirty }

var errNoKey = errors.New("provider not configured")

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		fallback   bool
		providers  []*mockProvider
		dirty      bool
		wantStatus string
		wantHTTP   int
	}{
		{
			name:       "primary ready",
			method:     "llama",
			fallback:   true,
			providers:  []*mockProvider{{name: "llama"}, {name: "tesseract"}},
			wantStatus: StatusHealthy,
			wantHTTP:   http.StatusOK,
		},
		{
			name:       "only fallback ready",
			method:     "llama",
			fallback:   true,
			providers:  []*mockProvider{{name: "llama", err: errNoKey}, {name: "tesseract"}},
			wantStatus: StatusDegraded,
			wantHTTP:   http.StatusOK,
		},
		{
			name:       "primary missing without fallback",
			method:     "gpt4",
			fallback:   false,
			providers:  []*mockProvider{{name: "gpt4", err: errNoKey}, {name: "tesseract"}},
			wantStatus: StatusUnhealthy,
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "nothing ready",
			method:     "llama",
			fallback:   true,
			providers:  []*mockProvider{{name: "llama", err: errNoKey}, {name: "gpt4", err: errNoKey}},
			wantStatus: StatusUnhealthy,
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "unsaved cache",
			method:     "tesseract",
			fallback:   true,
			providers:  []*mockProvider{{name: "tesseract"}},
			dirty:      true,
			wantStatus: StatusDegraded,
			wantHTTP:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []interfaces.OCRProvider
			for _, p := range tt.providers {
				providers = append(providers, p)
			}
			checker := NewHealthChecker(tt.method, tt.fallback, &mockCache{entries: 3, dirty: tt.dirty}, providers...)

			status, data, httpStatus := checker.HealthCheck()

			if status != tt.wantStatus || httpStatus != tt.wantHTTP {
				t.Errorf("got %s/%d, want %s/%d", status, httpStatus, tt.wantStatus, tt.wantHTTP)
			}
			if data["ocr_method"] != tt.method {
				t.Errorf("unexpected ocr_method %v", data["ocr_method"])
			}
			if data["cache_entries"] != 3 {
				t.Errorf("unexpected cache_entries %v", data["cache_entries"])
			}
			providerStates := data["providers"].(map[string]string)
			if len(providerStates) != len(tt.providers) {
				t.Errorf("expected %d provider states, got %v", len(tt.providers), providerStates)
			}
		})
	}
}

func TestHealthCheckWithoutCache(t *testing.T) {
	checker := NewHealthChecker("tesseract", true, nil, &mockProvider{name: "tesseract"})
	status, data, _ := checker.HealthCheck()
	if status != StatusHealthy || data["cache_entries"] != 0 {
		t.Errorf("unexpected result %s %v", status, data)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{time.Hour, "1h 0m 0s"},
		{26*time.Hour + 61*time.Second, "1d 2h 1m 1s"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
