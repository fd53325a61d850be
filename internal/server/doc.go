// Package server hosts the relay endpoints on an HTTP listener.
//
// RelayServer mounts the /auth and /callback handlers of package relay next
// to the health probes and wraps them with:
//   - OpenTelemetry server spans (otelhttp)
//   - request count, duration and in-flight metrics
//   - security headers (CSP restricted to the inline messaging script)
//   - an X-Request-ID correlation header
//   - per-IP token bucket rate limiting on the relay routes
//
// TLS is terminated when a certificate and key are configured. Shutdown
// first flips readiness to "shutting down", then drains in-flight requests.
//
// MetricsServer exposes the Prometheus registry on a separate listener so
// operational metrics are not reachable through the public relay port.
package server
