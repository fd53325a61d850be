package instrumentation

import (
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(map[string]string{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if config.ServiceName != DefaultServiceName {
		t.Errorf("expected ServiceName %q, got %q", DefaultServiceName, config.ServiceName)
	}
	if !config.Enabled {
		t.Error("expected Enabled to be true by default")
	}
	if config.MetricsExporter != ExporterPrometheus {
		t.Errorf("expected MetricsExporter 'prometheus', got %q", config.MetricsExporter)
	}
	if config.TracingExporter != ExporterNone {
		t.Errorf("expected TracingExporter 'none', got %q", config.TracingExporter)
	}
	if config.TraceSamplingRate != 0.1 {
		t.Errorf("expected TraceSamplingRate 0.1, got %f", config.TraceSamplingRate)
	}
	if config.PrometheusEndpoint != "/metrics" {
		t.Errorf("expected PrometheusEndpoint '/metrics', got %q", config.PrometheusEndpoint)
	}
	if config.DetailedLabels {
		t.Error("expected DetailedLabels to be false by default")
	}
	if !config.AuditLogging.Enabled || config.AuditLogging.IncludePII {
		t.Errorf("expected audit logging enabled without PII, got %+v", config.AuditLogging)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	config, err := LoadConfig(map[string]string{
		"OTEL_SERVICE_NAME":           "relay-staging",
		"INSTRUMENTATION_ENABLED":     "false",
		"METRICS_EXPORTER":            "STDOUT",
		"TRACING_EXPORTER":            "otlp",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_EXPORTER_OTLP_INSECURE": "true",
		"OTEL_TRACES_SAMPLER_ARG":     "0.5",
		"METRICS_DETAILED_LABELS":     "true",
		"AUDIT_LOGGING_INCLUDE_PII":   "true",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if config.ServiceName != "relay-staging" {
		t.Errorf("expected ServiceName 'relay-staging', got %q", config.ServiceName)
	}
	if config.Enabled {
		t.Error("expected Enabled to be false")
	}
	if config.MetricsExporter != ExporterStdout {
		t.Errorf("expected MetricsExporter to be lowercased to 'stdout', got %q", config.MetricsExporter)
	}
	if config.TracingExporter != ExporterOTLP || config.OTLPEndpoint != "collector:4318" || !config.OTLPInsecure {
		t.Errorf("unexpected OTLP settings: %+v", config)
	}
	if config.TraceSamplingRate != 0.5 {
		t.Errorf("expected TraceSamplingRate 0.5, got %f", config.TraceSamplingRate)
	}
	if !config.DetailedLabels {
		t.Error("expected DetailedLabels to be true")
	}
	if !config.AuditLogging.IncludePII {
		t.Error("expected IncludePII to be true")
	}
}

func TestLoadConfig_KubernetesFallbacks(t *testing.T) {
	config, err := LoadConfig(map[string]string{
		"POD_NAMESPACE": "cms",
		"HOSTNAME":      "decap-oauth-7d9f",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if config.K8sNamespace != "cms" {
		t.Errorf("expected K8sNamespace from POD_NAMESPACE, got %q", config.K8sNamespace)
	}
	if config.K8sPodName != "decap-oauth-7d9f" {
		t.Errorf("expected K8sPodName from HOSTNAME, got %q", config.K8sPodName)
	}

	config, err = LoadConfig(map[string]string{
		"K8S_NAMESPACE": "explicit",
		"POD_NAMESPACE": "cms",
		"K8S_POD_NAME":  "pod-a",
		"HOSTNAME":      "host-b",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if config.K8sNamespace != "explicit" || config.K8sPodName != "pod-a" {
		t.Errorf("expected explicit Kubernetes variables to win, got %q/%q", config.K8sNamespace, config.K8sPodName)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name        string
		environ     map[string]string
		errContains string
	}{
		{
			name:        "unparsable bool",
			environ:     map[string]string{"INSTRUMENTATION_ENABLED": "maybe"},
			errContains: "failed to parse instrumentation environment",
		},
		{
			name:        "unparsable float",
			environ:     map[string]string{"OTEL_TRACES_SAMPLER_ARG": "half"},
			errContains: "failed to parse instrumentation environment",
		},
		{
			name:        "sampling rate out of range",
			environ:     map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"},
			errContains: "sampling rate",
		},
		{
			name:        "unknown metrics exporter",
			environ:     map[string]string{"METRICS_EXPORTER": "statsd"},
			errContains: "invalid metrics exporter",
		},
		{
			name:        "otlp without endpoint",
			environ:     map[string]string{"TRACING_EXPORTER": "otlp"},
			errContains: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.environ)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "from-process-env")
	t.Setenv("TRACING_EXPORTER", "none")

	config, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if config.ServiceName != "from-process-env" {
		t.Errorf("expected ServiceName 'from-process-env', got %q", config.ServiceName)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "zero value",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "prometheus without tracing",
			config:  Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 0.1},
			wantErr: false,
		},
		{
			name:    "otlp metrics with endpoint",
			config:  Config{MetricsExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"},
			wantErr: false,
		},
		{
			name:    "otlp metrics without endpoint",
			config:  Config{MetricsExporter: ExporterOTLP},
			wantErr: true,
		},
		{
			name:    "invalid tracing exporter",
			config:  Config{TracingExporter: "jaeger"},
			wantErr: true,
		},
		{
			name:    "negative sampling rate",
			config:  Config{TraceSamplingRate: -0.1},
			wantErr: true,
		},
		{
			name:    "relative prometheus endpoint",
			config:  Config{PrometheusEndpoint: "metrics"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
