package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsProviderDefaults(t *testing.T) {
	p, err := NewMetricsProvider(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetricsProvider() error = %v", err)
	}
	if p.config.Namespace != "mcpgateway" {
		t.Errorf("Namespace = %q, want mcpgateway", p.config.Namespace)
	}
	if p.config.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", p.config.MetricsPort)
	}
}

func TestProvidersDoNotCollide(t *testing.T) {
	// Each provider owns a registry, so repeated construction must not fail
	// with duplicate registration.
	for i := 0; i < 3; i++ {
		if _, err := NewMetricsProvider(MetricsConfig{}); err != nil {
			t.Fatalf("provider %d: %v", i, err)
		}
	}
}

func TestRecordToolCall(t *testing.T) {
	p, err := NewMetricsProvider(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetricsProvider() error = %v", err)
	}

	ctx := context.Background()
	p.RecordToolCall(ctx, "files__read", "ok", 25*time.Millisecond)
	p.RecordToolCall(ctx, "files__read", "ok", 30*time.Millisecond)
	p.RecordToolCall(ctx, "files__read", "transport_error", 5*time.Millisecond)

	ok := testutil.ToFloat64(p.toolCallTotal.WithLabelValues("files__read", "ok"))
	if ok != 2 {
		t.Errorf("ok count = %v, want 2", ok)
	}
	failed := testutil.ToFloat64(p.toolCallTotal.WithLabelValues("files__read", "transport_error"))
	if failed != 1 {
		t.Errorf("transport_error count = %v, want 1", failed)
	}
}

func TestRecordBackendHealth(t *testing.T) {
	p, err := NewMetricsProvider(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetricsProvider() error = %v", err)
	}

	ctx := context.Background()
	p.RecordBackendHealth(ctx, "files", true)
	if got := testutil.ToFloat64(p.backendHealthy.WithLabelValues("files")); got != 1 {
		t.Errorf("healthy gauge = %v, want 1", got)
	}

	p.RecordBackendHealth(ctx, "files", false)
	if got := testutil.ToFloat64(p.backendHealthy.WithLabelValues("files")); got != 0 {
		t.Errorf("healthy gauge = %v, want 0", got)
	}
}

func TestRecordFrameOverflowAndReload(t *testing.T) {
	p, err := NewMetricsProvider(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetricsProvider() error = %v", err)
	}

	ctx := context.Background()
	p.RecordFrameOverflow(ctx)
	p.RecordReload(ctx, "ok")
	p.RecordReload(ctx, "error")

	if got := testutil.ToFloat64(p.frameOverflow); got != 1 {
		t.Errorf("frame overflow = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.reloadTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("reload error count = %v, want 1", got)
	}
}

func TestTracingProviderNoop(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{ExporterType: ExporterTypeNoop})
	if err != nil {
		t.Fatalf("NewTracingProvider() error = %v", err)
	}

	ctx, span := tp.StartMethodSpan(context.Background(), "tools/call")
	_, toolSpan := tp.StartToolSpan(ctx, "files__read")
	toolSpan.End()
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTracingUnsupportedExporter(t *testing.T) {
	if _, err := NewTracingProvider(TracingConfig{ExporterType: "smoke-signals"}); err == nil {
		t.Error("NewTracingProvider() accepted an unsupported exporter type")
	}
}
