package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestMetricsProvider(t *testing.T, detailedLabels bool) (*Provider, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  detailedLabels,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return provider, ctx
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	provider, ctx := newTestMetricsProvider(t, false)

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", PathAuth, 302, 2*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "GET", PathCallback, 500, 50*time.Millisecond)
}

func TestMetrics_InFlight(t *testing.T) {
	provider, ctx := newTestMetricsProvider(t, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.IncrementInFlight(ctx)
	metrics.IncrementInFlight(ctx)
	metrics.DecrementInFlight(ctx)
	metrics.RecordRateLimited(ctx, PathAuth)
}

func TestMetrics_RecordAuthorize(t *testing.T) {
	provider, ctx := newTestMetricsProvider(t, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordAuthorize(ctx, "github", OAuthResultRedirected, "cms.example.com")
	metrics.RecordAuthorize(ctx, LabelOther, OAuthResultRejected, "")
}

func TestMetrics_RecordAuthorize_DetailedLabels(t *testing.T) {
	provider, ctx := newTestMetricsProvider(t, true)

	metrics := provider.Metrics()
	if !metrics.detailedLabels {
		t.Error("expected detailedLabels to be true")
	}

	// Should not panic
	metrics.RecordAuthorize(ctx, "github", OAuthResultRedirected, "cms.example.com")
	metrics.RecordCallback(ctx, "github", OAuthResultSuccess, "cms.example.com")
}

func TestMetrics_RecordCallbackAndExchange(t *testing.T) {
	provider, ctx := newTestMetricsProvider(t, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordCallback(ctx, "github", OAuthResultSuccess, "")
	metrics.RecordCallback(ctx, "github", OAuthResultDenied, "")
	metrics.RecordCallback(ctx, "github", OAuthResultFailure, "")
	metrics.RecordExchange(ctx, "github", StatusSuccess, 120*time.Millisecond)
	metrics.RecordExchange(ctx, "github", StatusError, 10*time.Second)
	metrics.RecordStateRejected(ctx, "github")
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", PathAuth, 302, time.Millisecond)
	metrics.IncrementInFlight(ctx)
	metrics.DecrementInFlight(ctx)
	metrics.RecordRateLimited(ctx, PathAuth)
	metrics.RecordAuthorize(ctx, "github", OAuthResultRedirected, "cms.example.com")
	metrics.RecordCallback(ctx, "github", OAuthResultSuccess, "cms.example.com")
	metrics.RecordExchange(ctx, "github", StatusSuccess, time.Millisecond)
	metrics.RecordStateRejected(ctx, "github")
}

func TestMetrics_ZeroValue(t *testing.T) {
	var m Metrics
	ctx := context.Background()

	// A zero Metrics must be usable as a no-op recorder
	m.RecordHTTPRequest(ctx, "GET", PathCallback, 200, time.Millisecond)
	m.RecordExchange(ctx, "github", StatusError, time.Millisecond)
}
