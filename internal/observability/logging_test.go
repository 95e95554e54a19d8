package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/model"
)

func TestNewLogger_LevelsParsed(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := NewLogger(config.ObservabilityConfig{LogLevel: level})
		if err != nil {
			t.Errorf("NewLogger(%q) error = %v", level, err)
		}
		if logger == nil {
			t.Errorf("NewLogger(%q) = nil", level)
		}
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom(empty ctx) should return the fallback")
	}

	stored := zap.NewNop()
	ctx := WithLogger(context.Background(), stored)
	if got := LoggerFrom(ctx, fallback); got != stored {
		t.Error("LoggerFrom should return the stored logger")
	}
}

func TestRequestLogger_EnrichesWithActorFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	ctx := model.WithActorContext(context.Background(), &model.ActorContext{
		SubjectID:     "owner-1",
		Role:          model.RolePartyA,
		CorrelationID: "corr-1",
		TraceID:       "trace-1",
	})
	RequestLogger(ctx, logger).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["subject_id"] != "owner-1" || fields["role"] != model.RolePartyA {
		t.Errorf("fields = %v", fields)
	}
	if fields["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v", fields["trace_id"])
	}
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"token": "tok-secret",
		"name":  "Acme",
		"nested": map[string]any{
			"secret": "x",
			"email":  "b@acme.test",
		},
	}
	got := RedactBody(body, []string{"email"})

	if got["token"] != "[REDACTED]" || got["name"] != "Acme" {
		t.Errorf("top level = %v", got)
	}
	nested := got["nested"].(map[string]any)
	if nested["secret"] != "[REDACTED]" || nested["email"] != "[REDACTED]" {
		t.Errorf("nested = %v", nested)
	}
	// Original untouched.
	if body["token"] != "tok-secret" {
		t.Error("RedactBody must not mutate its input")
	}
}
