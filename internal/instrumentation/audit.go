package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/decap-oauth/internal/logging"
)

// AuthEvent captures one authorize or callback request for audit logging.
//
// # Privacy Considerations
//
// ClientIP is personal data. LogAttrs only emits a hash of it; the raw value
// is only written by LogAuditAttrs when PII logging is enabled.
// Access tokens are never part of an AuthEvent.
type AuthEvent struct {
	// Operation is OperationAuthorize or OperationCallback
	Operation string

	Provider string
	Host     string
	Scope    string
	ClientIP string

	// StateSigned reports whether a signed state was issued or verified
	StateSigned bool

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Result    string
	Status    int
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewAuthEvent creates a new AuthEvent with timing started.
// Call Complete() when the request finishes.
func NewAuthEvent(operation string) *AuthEvent {
	return &AuthEvent{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// WithRequest sets the provider, host and client address of the request.
func (ev *AuthEvent) WithRequest(provider, host, clientIP string) *AuthEvent {
	ev.Provider = provider
	ev.Host = host
	ev.ClientIP = clientIP
	return ev
}

// WithScope sets the requested scope.
func (ev *AuthEvent) WithScope(scope string) *AuthEvent {
	ev.Scope = scope
	return ev
}

// WithStateSigned records whether the state parameter is signed.
func (ev *AuthEvent) WithStateSigned(signed bool) *AuthEvent {
	ev.StateSigned = signed
	return ev
}

// WithSpanContext extracts trace context from the current span.
func (ev *AuthEvent) WithSpanContext(ctx context.Context) *AuthEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ev.TraceID = span.SpanContext().TraceID().String()
		ev.SpanID = span.SpanContext().SpanID().String()
	}
	return ev
}

// Complete marks the event as finished with the given result and HTTP status.
func (ev *AuthEvent) Complete(result string, status int, err error) *AuthEvent {
	ev.Duration = time.Since(ev.StartTime)
	ev.Result = result
	ev.Status = status
	ev.Success = status < 400
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// ResultOrUnknown returns the result, or "unknown" if the event was never completed.
func (ev *AuthEvent) ResultOrUnknown() string {
	if ev.Result == "" {
		return StatusUnknown
	}
	return ev.Result
}

// LogAttrs returns slog attributes for operational logging.
// The client IP is reduced to a hash.
func (ev *AuthEvent) LogAttrs() []slog.Attr {
	attrs := ev.baseAttrs()
	if ev.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip_hash", logging.HashForLogging(ev.ClientIP)))
	}
	return attrs
}

// LogAuditAttrs returns slog attributes including the raw client IP.
//
// # Security Warning
//
// This method includes PII. Ensure audit logs are stored securely with
// appropriate access controls.
func (ev *AuthEvent) LogAuditAttrs() []slog.Attr {
	attrs := ev.baseAttrs()
	if ev.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", ev.ClientIP))
	}
	if ev.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ev.SpanID))
	}
	return attrs
}

func (ev *AuthEvent) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyOperation, ev.Operation),
		slog.String(logging.KeyProvider, ev.Provider),
		slog.String("result", ev.ResultOrUnknown()),
		slog.Int("http_status", ev.Status),
		slog.Duration(logging.KeyDuration, ev.Duration),
		slog.Bool("success", ev.Success),
		slog.Bool("state_signed", ev.StateSigned),
	}

	// Add optional fields only if present
	if ev.Host != "" {
		attrs = append(attrs, logging.Host(ev.Host))
	}
	if ev.Scope != "" {
		attrs = append(attrs, slog.String("scope", ev.Scope))
	}
	if ev.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ev.TraceID))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ev.Error))
	}
	return attrs
}

// AuditLogger provides structured audit logging for relay requests.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogAuthEvent logs a completed authorize or callback request.
// Nil receivers and nil events are ignored.
func (al *AuditLogger) LogAuthEvent(ev *AuthEvent) {
	if al == nil || !al.enabled || ev == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ev.LogAuditAttrs()
	} else {
		attrs = ev.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ev.Success {
		al.logger.Info("oauth_"+ev.Operation+"_completed", args...)
	} else {
		al.logger.Warn("oauth_"+ev.Operation+"_failed", args...)
	}
}
