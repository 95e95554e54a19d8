package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/redlinehq/redline/internal/config"
)

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "redline", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:  true,
		Exporter: "jaeger",
	}, "redline", "test")
	if err == nil || !strings.Contains(err.Error(), "unsupported exporter") {
		t.Errorf("InitTracing() error = %v, want unsupported exporter", err)
	}
}

func TestNewSampler_RateClamping(t *testing.T) {
	for _, rate := range []float64{-1, 0, 0.5, 1, 2} {
		s := newSampler(config.TracingConfig{SamplingRate: rate})
		if s == nil {
			t.Errorf("newSampler(%v) = nil", rate)
		}
	}
}

func TestTraceIDFromContext_EmptyWithoutSpan(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext() = %q, want empty", got)
	}
}
