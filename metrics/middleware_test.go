package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/prices/{medicine}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "/prices/{medicine}", "202"))

	for _, name := range []string{"aspirin", "ibuprofen"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/prices/"+name, nil))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rr.Code)
		}
	}

	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "/prices/{medicine}", "202"))
	if after-before != 2 {
		t.Errorf("expected counter to grow by 2, grew by %v", after-before)
	}
	if got := testutil.ToFloat64(HTTPRequestInFlight); got != 0 {
		t.Errorf("expected no in-flight requests, got %v", got)
	}
}

func TestMetricsWithoutRouteContext(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "unmatched", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))
	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "unmatched", "200"))

	if after-before != 1 {
		t.Errorf("expected unmatched counter to grow by 1, grew by %v", after-before)
	}
}

func TestObserveExternalCall(t *testing.T) {
	before := testutil.CollectAndCount(ExternalCallDuration)
	ObserveExternalCall("rxnorm-test", 0.2, nil)
	ObserveExternalCall("rxnorm-test", 0.4, errors.New("boom"))
	after := testutil.CollectAndCount(ExternalCallDuration)

	if after-before != 2 {
		t.Errorf("expected two new series, got %d", after-before)
	}
}
