package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giygas/prescription-analyzer/handlers"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/go-chi/cors"
	"github.com/juju/ratelimit"
)

// RealIPMiddleware extracts the real IP from X-Forwarded-For header
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Take the first IP from the comma-separated list
			if idx := strings.Index(xff, ","); idx != -1 {
				xff = xff[:idx]
			}
			r.RemoteAddr = strings.TrimSpace(xff)
		} else if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			r.RemoteAddr = strings.TrimSpace(xrip)
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows browser clients from any origin
func CORSMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Rate", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           600,
	})
}

// RequestSizeMiddleware limits the size of request headers and body
func RequestSizeMiddleware(maxBody, maxHeader int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBody {
				logging.Warn("Request body too large",
					"content_length", r.ContentLength,
					"max_allowed", maxBody,
					"remote_addr", r.RemoteAddr,
					"user_agent", r.UserAgent())

				handlers.RespondWithError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", maxBody))
				return
			}

			// Rough estimate, keys and values only
			headerSize := int64(0)
			for key, values := range r.Header {
				headerSize += int64(len(key))
				for _, value := range values {
					headerSize += int64(len(value))
				}
			}

			if headerSize > maxHeader {
				logging.Warn("Request headers too large",
					"header_size", headerSize,
					"max_allowed", maxHeader,
					"remote_addr", r.RemoteAddr,
					"user_agent", r.UserAgent())

				handlers.RespondWithError(w, http.StatusRequestHeaderFieldsTooLarge,
					fmt.Sprintf("Request headers too large. Maximum allowed size is %d bytes", maxHeader))
				return
			}

			// Chunked bodies carry no Content-Length
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			next.ServeHTTP(w, r)
		})
	}
}

// Bucket settings per client IP
const (
	bucketRate     = 3
	bucketCapacity = 1000
)

// RateLimiter manages per-client token buckets
type RateLimiter struct {
	clients map[string]*ratelimit.Bucket
	mu      sync.RWMutex
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(cleanupEvery time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*ratelimit.Bucket),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop(cleanupEvery)
	return rl
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if bucket, exists = rl.clients[clientIP]; !exists {
			bucket = ratelimit.NewBucketWithRate(bucketRate, bucketCapacity)
			rl.clients[clientIP] = bucket
			metrics.RateLimiterBucketsTotal.Set(float64(len(rl.clients)))
		}
		rl.mu.Unlock()
	}

	return bucket
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup forgets clients whose buckets have refilled
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, bucket := range rl.clients {
		if bucket.Available() == bucket.Capacity() {
			delete(rl.clients, ip)
		}
	}
	metrics.RateLimiterBucketsTotal.Set(float64(len(rl.clients)))
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// getTokenCost prices a request by how much upstream work it triggers
func getTokenCost(r *http.Request) int64 {
	path := r.URL.Path

	switch path {
	case "/", "/metrics":
		return 0
	case "/health":
		return 5
	case "/process-prescription":
		return 200 // Vision models, possibly several
	case "/api/generic-alternatives":
		return 50
	case "/medicine-info":
		return 100
	}

	if strings.HasPrefix(path, "/prices/") {
		return 100 // Two scrapes and two completions
	}
	return 20
}

// Middleware enforces the per-IP budget
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := rl.getBucket(r.RemoteAddr)
		tokenCost := getTokenCost(r)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucketCapacity))
		w.Header().Set("X-RateLimit-Rate", strconv.Itoa(bucketRate))

		if bucket.TakeAvailable(tokenCost) < tokenCost {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			handlers.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))
		next.ServeHTTP(w, r)
	})
}
