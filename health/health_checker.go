// Package health reports whether the analyzer can serve prescriptions.
package health

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/prescription-analyzer/interfaces"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	ocrMethod string
	fallback  bool
	providers []interfaces.OCRProvider
	cache     interfaces.GenericsCache
	startTime time.Time
}

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// NewHealthChecker creates a health checker over the OCR providers and
// the generics cache
func NewHealthChecker(ocrMethod string, fallback bool, cache interfaces.GenericsCache, providers ...interfaces.OCRProvider) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		ocrMethod: ocrMethod,
		fallback:  fallback,
		providers: providers,
		cache:     cache,
		startTime: time.Now(),
	}
}

// HealthCheck is unhealthy when no usable OCR provider is left, degraded
// when only fallbacks can serve or the cache has unsaved changes.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	providers := make(map[string]string, len(h.providers))
	primaryReady, anyReady := false, false
	for _, p := range h.providers {
		if err := p.Ready(); err != nil {
			providers[p.Name()] = err.Error()
			continue
		}
		providers[p.Name()] = "ready"
		anyReady = true
		if p.Name() == h.ocrMethod {
			primaryReady = true
		}
	}

	cacheDirty := h.cache != nil && h.cache.Dirty()

	switch {
	case !anyReady, !primaryReady && !h.fallback:
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	case !primaryReady, cacheDirty:
		status = StatusDegraded
		httpStatus = http.StatusOK
	default:
		status = StatusHealthy
		httpStatus = http.StatusOK
	}

	cacheEntries := 0
	if h.cache != nil {
		cacheEntries = h.cache.Len()
	}

	data = map[string]any{
		"ocr_method":       h.ocrMethod,
		"fallback_enabled": h.fallback,
		"providers":        providers,
		"cache_entries":    cacheEntries,
		"cache_dirty":      cacheDirty,
		"uptime":           FormatUptime(time.Since(h.startTime)),
		"goroutines":       runtime.NumGoroutine(),
	}
	return status, data, httpStatus
}

// FormatUptime formats a duration as "1d 2h 3m 4s", dropping leading zero units
func FormatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
