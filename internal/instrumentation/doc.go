// Package instrumentation provides OpenTelemetry instrumentation for the
// decap-oauth relay.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, authorize/callback outcomes and token exchanges
//   - Distributed tracing for relay requests and the outbound exchange
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//   - Audit logging of every authorize and callback request
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - http_requests_in_flight: Gauge of requests being served
//   - http_requests_rate_limited_total: Counter of requests rejected with 429
//
// OAuth Relay Metrics:
//   - oauth_authorize_total: Counter of authorize requests by provider and result
//   - oauth_callback_total: Counter of callback requests by provider and result
//   - oauth_exchange_total: Counter of token exchanges by provider and status
//   - oauth_exchange_duration_seconds: Histogram of token exchange durations
//   - oauth_state_rejected_total: Counter of callbacks with an invalid signed state
//
// Provider and path labels are bounded with ProviderLabel and PathLabel.
//
// # Tracing
//
// Spans are created for:
//   - relay.authorize and relay.callback (server spans)
//   - oauth.exchange (client span around the outbound token request)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: decap-oauth)
//   - AUDIT_LOGGING_ENABLED: Enable/disable audit logs (default: true)
//   - AUDIT_LOGGING_INCLUDE_PII: Log raw client IPs (default: false)
//
// # Example Usage
//
//	cfg, err := instrumentation.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordHTTPRequest(ctx, "GET", "/auth", 302, time.Since(start))
//	recorder.RecordExchange(ctx, "github", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
