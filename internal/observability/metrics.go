package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	renderDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Negotiation metrics
	TransitionsTotal       *prometheus.CounterVec
	RevisionsAppendedTotal *prometheus.CounterVec
	ValidationFailures     *prometheus.CounterVec

	// Token metrics
	TokensIssuedTotal   *prometheus.CounterVec
	TokensConsumedTotal *prometheus.CounterVec
	TokenDenialsTotal   *prometheus.CounterVec

	// Signing metrics
	SignaturesTotal   prometheus.Counter
	DocumentsComplete prometheus.Counter

	// Side effect metrics
	NotifyFailuresTotal *prometheus.CounterVec
	RenderDuration      prometheus.Histogram
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redline_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Negotiation
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_transitions_total",
			Help: "Total number of workflow state transitions.",
		}, []string{"from", "to"}),
		RevisionsAppendedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_revisions_appended_total",
			Help: "Total number of revisions appended.",
		}, []string{"actor_role"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_validation_failures_total",
			Help: "Total number of rejected submissions.",
		}, []string{"operation"}),

		// Tokens
		TokensIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_tokens_issued_total",
			Help: "Total number of access tokens issued.",
		}, []string{"scope"}),
		TokensConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_tokens_consumed_total",
			Help: "Total number of access tokens consumed.",
		}, []string{"scope"}),
		TokenDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_token_denials_total",
			Help: "Total number of denied token resolutions.",
		}, []string{"code"}),

		// Signing
		SignaturesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redline_signatures_total",
			Help: "Total number of recorded signatures.",
		}),
		DocumentsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redline_documents_complete_total",
			Help: "Total number of fully signed documents.",
		}),

		// Side effects
		NotifyFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redline_notify_failures_total",
			Help: "Total number of failed notification deliveries.",
		}, []string{"event"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redline_render_duration_seconds",
			Help:    "Document render duration in seconds.",
			Buckets: renderDurationBuckets,
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.TransitionsTotal,
		m.RevisionsAppendedTotal,
		m.ValidationFailures,
		m.TokensIssuedTotal,
		m.TokensConsumedTotal,
		m.TokenDenialsTotal,
		m.SignaturesTotal,
		m.DocumentsComplete,
		m.NotifyFailuresTotal,
		m.RenderDuration,
	)

	return m
}

// --- Recording helpers ---
//
// All helpers are nil-safe so callers wired without metrics stay quiet.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTransition records a workflow state transition.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordRevisionAppended records one appended revision.
func (m *Metrics) RecordRevisionAppended(actorRole string) {
	if m == nil {
		return
	}
	m.RevisionsAppendedTotal.WithLabelValues(actorRole).Inc()
}

// RecordValidationFailure records a rejected submission.
func (m *Metrics) RecordValidationFailure(operation string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(operation).Inc()
}

// RecordTokenIssued records one issued token.
func (m *Metrics) RecordTokenIssued(scope string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(scope).Inc()
}

// RecordTokenConsumed records one consumed token.
func (m *Metrics) RecordTokenConsumed(scope string) {
	if m == nil {
		return
	}
	m.TokensConsumedTotal.WithLabelValues(scope).Inc()
}

// RecordTokenDenial records a denied token resolution by error code.
func (m *Metrics) RecordTokenDenial(code string) {
	if m == nil {
		return
	}
	m.TokenDenialsTotal.WithLabelValues(code).Inc()
}

// RecordSignature records one recorded signature; complete marks the
// document fully signed.
func (m *Metrics) RecordSignature(complete bool) {
	if m == nil {
		return
	}
	m.SignaturesTotal.Inc()
	if complete {
		m.DocumentsComplete.Inc()
	}
}

// RecordNotifyFailure records a failed notification delivery.
func (m *Metrics) RecordNotifyFailure(event string) {
	if m == nil {
		return
	}
	m.NotifyFailuresTotal.WithLabelValues(event).Inc()
}

// RecordRenderDuration records one document render.
func (m *Metrics) RecordRenderDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.RenderDuration.Observe(duration.Seconds())
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics
// using chi's route pattern (not the actual URL path) to avoid label
// cardinality explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
