package logging

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func newCapturingLogger() (*slog.Logger, *strings.Builder) {
	var out strings.Builder
	return slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})), &out
}

func TestLoggingMiddlewareQuietPaths(t *testing.T) {
	logger, out := newCapturingLogger()
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			out.Reset()
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}
			if out.Len() != 0 {
				t.Errorf("expected no logs for %s, got: %s", path, out.String())
			}
		})
	}
}

func TestLoggingMiddlewareLogsRequests(t *testing.T) {
	logger, out := newCapturingLogger()
	status := http.StatusOK
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"medicines":[]}`))
	}))

	tests := []struct {
		name      string
		path      string
		requestID any
		status    int
		contains  []string
		absent    []string
	}{
		{
			name:      "regular path",
			path:      "/api/generic-alternatives",
			requestID: "req-1",
			status:    http.StatusOK,
			contains:  []string{"HTTP request", "/api/generic-alternatives", "request_id=req-1", "bytes_written=16", "level=INFO"},
			absent:    []string{"query="},
		},
		{
			name:      "non string request id",
			path:      "/prices/aspirin",
			requestID: 12345,
			status:    http.StatusOK,
			contains:  []string{"request_id=unknown"},
		},
		{
			name:      "query is logged when present",
			path:      "/prices/aspirin?refresh=true",
			requestID: "req-2",
			status:    http.StatusOK,
			contains:  []string{"query=", "refresh=true"},
		},
		{
			name:      "server errors log at error level",
			path:      "/process-prescription",
			requestID: "req-3",
			status:    http.StatusInternalServerError,
			contains:  []string{"level=ERROR", "status_code=500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			status = tt.status
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, tt.requestID))

			handler.ServeHTTP(httptest.NewRecorder(), req)

			logs := out.String()
			for _, want := range tt.contains {
				if !strings.Contains(logs, want) {
					t.Errorf("log should contain %q, got: %s", want, logs)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(logs, unwanted) {
					t.Errorf("log should not contain %q, got: %s", unwanted, logs)
				}
			}
		})
	}
}
