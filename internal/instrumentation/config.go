package instrumentation

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: decap-oauth)
	ServiceName string

	// ServiceVersion is the version of the service, set from the build
	ServiceVersion string

	// ServiceInstanceID identifies this replica (default: hostname)
	ServiceInstanceID string

	// K8sNamespace and K8sPodName are attached to the telemetry resource when set
	K8sNamespace string
	K8sPodName   string

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool

	// MetricsExporter is one of "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter is one of "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the collector endpoint without scheme, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Development only.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based trace ID ratio (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// PrometheusEndpoint is the metrics path on the metrics server (default: "/metrics")
	PrometheusEndpoint string

	// DetailedLabels adds the request host to relay metrics.
	// Hosts are client supplied, so keep this off unless the Host header is
	// constrained by a fronting proxy.
	DetailedLabels bool

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII controls whether raw client IP addresses are logged.
	// When false (default), only a hash of the client IP is logged.
	IncludePII bool
}

// instrumentationEnv is the environment form of Config.
type instrumentationEnv struct {
	ServiceName        string  `env:"OTEL_SERVICE_NAME"           envDefault:"decap-oauth"`
	ServiceInstanceID  string  `env:"OTEL_SERVICE_INSTANCE_ID"`
	K8sNamespace       string  `env:"K8S_NAMESPACE"`
	PodNamespace       string  `env:"POD_NAMESPACE"`
	K8sPodName         string  `env:"K8S_POD_NAME"`
	Hostname           string  `env:"HOSTNAME"`
	Enabled            bool    `env:"INSTRUMENTATION_ENABLED"     envDefault:"true"`
	MetricsExporter    string  `env:"METRICS_EXPORTER"            envDefault:"prometheus"`
	TracingExporter    string  `env:"TRACING_EXPORTER"            envDefault:"none"`
	OTLPEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure       bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	TraceSamplingRate  float64 `env:"OTEL_TRACES_SAMPLER_ARG"     envDefault:"0.1"`
	PrometheusEndpoint string  `env:"PROMETHEUS_ENDPOINT"         envDefault:"/metrics"`
	DetailedLabels     bool    `env:"METRICS_DETAILED_LABELS"     envDefault:"false"`
	AuditEnabled       bool    `env:"AUDIT_LOGGING_ENABLED"       envDefault:"true"`
	AuditIncludePII    bool    `env:"AUDIT_LOGGING_INCLUDE_PII"   envDefault:"false"`
}

// ConfigFromEnv reads the instrumentation configuration from the process environment.
func ConfigFromEnv() (Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return LoadConfig(environ)
}

// LoadConfig reads the instrumentation configuration from environ and validates it.
// Unset variables take their documented defaults.
func LoadConfig(environ map[string]string) (Config, error) {
	var raw instrumentationEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("failed to parse instrumentation environment: %w", err)
	}

	config := Config{
		ServiceName:        raw.ServiceName,
		ServiceVersion:     "unknown",
		ServiceInstanceID:  raw.ServiceInstanceID,
		K8sNamespace:       firstSet(raw.K8sNamespace, raw.PodNamespace),
		K8sPodName:         firstSet(raw.K8sPodName, raw.Hostname),
		Enabled:            raw.Enabled,
		MetricsExporter:    strings.ToLower(strings.TrimSpace(raw.MetricsExporter)),
		TracingExporter:    strings.ToLower(strings.TrimSpace(raw.TracingExporter)),
		OTLPEndpoint:       raw.OTLPEndpoint,
		OTLPInsecure:       raw.OTLPInsecure,
		TraceSamplingRate:  raw.TraceSamplingRate,
		PrometheusEndpoint: raw.PrometheusEndpoint,
		DetailedLabels:     raw.DetailedLabels,
		AuditLogging: AuditLoggingConfig{
			Enabled:    raw.AuditEnabled,
			IncludePII: raw.AuditIncludePII,
		},
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks exporter names, the sampling rate and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter; set OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	if c.PrometheusEndpoint != "" && !strings.HasPrefix(c.PrometheusEndpoint, "/") {
		return fmt.Errorf("prometheus endpoint must start with '/', got %q", c.PrometheusEndpoint)
	}

	return nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// DefaultServiceName is reported when OTEL_SERVICE_NAME is unset
	DefaultServiceName = "decap-oauth"

	// OAuth result values
	OAuthResultRedirected = "redirected"
	OAuthResultRejected   = "rejected"
	OAuthResultDenied     = "denied"
	OAuthResultSuccess    = "success"
	OAuthResultFailure    = "failure"

	// Relay operations
	OperationAuthorize = "authorize"
	OperationCallback  = "callback"
	OperationExchange  = "exchange"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
