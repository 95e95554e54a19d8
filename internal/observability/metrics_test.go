package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.RecordTransition("DRAFT", "AWAITING_INPUT")
	m.RecordRevisionAppended("PARTY_B")
	m.RecordTokenIssued("REVIEW")
	m.RecordTokenConsumed("SIGN")
	m.RecordTokenDenial("TOKEN_EXPIRED")
	m.RecordSignature(true)
	m.RecordNotifyFailure("invite_sent")
	m.RecordValidationFailure("submit")
	m.RecordRenderDuration(50 * time.Millisecond)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("DRAFT", "AWAITING_INPUT")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SignaturesTotal); got != 1 {
		t.Errorf("signatures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DocumentsComplete); got != 1 {
		t.Errorf("complete = %v, want 1", got)
	}
}

func TestNilMetrics_HelpersAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition("a", "b")
	m.RecordSignature(false)
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/api/documents/{documentId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-123", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/documents/{documentId}", "200"))
	if got != 1 {
		t.Errorf("requests with pattern label = %v, want 1", got)
	}
}
