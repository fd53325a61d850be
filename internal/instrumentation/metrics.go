package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrProvider = "provider"
	attrResult   = "result"
	attrHost     = "host"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	inFlightRequests    metric.Int64UpDownCounter
	rateLimitedTotal    metric.Int64Counter

	// OAuth relay metrics
	oauthAuthorizeTotal     metric.Int64Counter
	oauthCallbackTotal      metric.Int64Counter
	oauthExchangeTotal      metric.Int64Counter
	oauthExchangeDuration   metric.Float64Histogram
	oauthStateRejectedTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.inFlightRequests, err = meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_in_flight gauge: %w", err)
	}

	m.rateLimitedTotal, err = meter.Int64Counter(
		"http_requests_rate_limited_total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_rate_limited_total counter: %w", err)
	}

	m.oauthAuthorizeTotal, err = meter.Int64Counter(
		"oauth_authorize_total",
		metric.WithDescription("Total number of authorize requests by provider and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_authorize_total counter: %w", err)
	}

	m.oauthCallbackTotal, err = meter.Int64Counter(
		"oauth_callback_total",
		metric.WithDescription("Total number of callback requests by provider and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_callback_total counter: %w", err)
	}

	m.oauthExchangeTotal, err = meter.Int64Counter(
		"oauth_exchange_total",
		metric.WithDescription("Total number of code-for-token exchanges by provider and status"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_exchange_total counter: %w", err)
	}

	m.oauthExchangeDuration, err = meter.Float64Histogram(
		"oauth_exchange_duration_seconds",
		metric.WithDescription("Duration of code-for-token exchanges in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_exchange_duration_seconds histogram: %w", err)
	}

	m.oauthStateRejectedTotal, err = meter.Int64Counter(
		"oauth_state_rejected_total",
		metric.WithDescription("Total number of callbacks rejected because of an invalid state"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_state_rejected_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
// Callers should pass a bounded path (see PathLabel).
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementInFlight increments the in-flight request gauge.
func (m *Metrics) IncrementInFlight(ctx context.Context) {
	if m.inFlightRequests == nil {
		return // Instrumentation not initialized
	}

	m.inFlightRequests.Add(ctx, 1)
}

// DecrementInFlight decrements the in-flight request gauge.
func (m *Metrics) DecrementInFlight(ctx context.Context) {
	if m.inFlightRequests == nil {
		return // Instrumentation not initialized
	}

	m.inFlightRequests.Add(ctx, -1)
}

// RecordRateLimited records a request rejected with 429.
func (m *Metrics) RecordRateLimited(ctx context.Context, path string) {
	if m.rateLimitedTotal == nil {
		return // Instrumentation not initialized
	}

	m.rateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPath, path)))
}

// RecordAuthorize records the outcome of an authorize request.
// Result should be one of: "redirected", "rejected".
// The host label is only added when detailed labels are enabled.
func (m *Metrics) RecordAuthorize(ctx context.Context, provider, result, host string) {
	if m.oauthAuthorizeTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && host != "" {
		attrs = append(attrs, attribute.String(attrHost, host))
	}

	m.oauthAuthorizeTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallback records the outcome of a callback request.
// Result should be one of: "success", "rejected", "denied", "failure".
func (m *Metrics) RecordCallback(ctx context.Context, provider, result, host string) {
	if m.oauthCallbackTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && host != "" {
		attrs = append(attrs, attribute.String(attrHost, host))
	}

	m.oauthCallbackTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExchange records a code-for-token exchange with status and duration.
//
// Parameters:
//   - provider: provider label (see ProviderLabel)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the outbound call
func (m *Metrics) RecordExchange(ctx context.Context, provider, status string, duration time.Duration) {
	if m.oauthExchangeTotal == nil || m.oauthExchangeDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, status),
	}

	m.oauthExchangeTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.oauthExchangeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStateRejected records a callback rejected by state verification.
func (m *Metrics) RecordStateRejected(ctx context.Context, provider string) {
	if m.oauthStateRejectedTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthStateRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrProvider, provider)))
}
