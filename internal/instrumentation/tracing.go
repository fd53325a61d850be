package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the decap-oauth package.
const TracerName = "github.com/teemow/decap-oauth"

// Span attribute keys for relay operations.
const (
	// SpanAttrProvider is the OAuth provider name.
	SpanAttrProvider = "oauth.provider"

	// SpanAttrOperation is the relay operation (authorize, callback, exchange).
	SpanAttrOperation = "oauth.operation"

	// SpanAttrScope is the requested scope.
	SpanAttrScope = "oauth.scope"

	// SpanAttrHost is the request Host header.
	SpanAttrHost = "oauth.host"

	// SpanAttrStateSigned reports whether the state parameter is signed.
	SpanAttrStateSigned = "oauth.state_signed"

	// SpanAttrResult is the outcome of the operation.
	SpanAttrResult = "oauth.result"
)

// SpanAttributeBuilder collects relay span attributes, skipping empty values.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder returns an empty builder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 6),
	}
}

// WithProvider adds the provider name unless it is empty.
func (b *SpanAttributeBuilder) WithProvider(provider string) *SpanAttributeBuilder {
	if provider != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrProvider, provider))
	}
	return b
}

// WithOperation adds the relay operation.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperation, operation))
	return b
}

// WithScope adds the requested scope unless it is empty.
func (b *SpanAttributeBuilder) WithScope(scope string) *SpanAttributeBuilder {
	if scope != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrScope, scope))
	}
	return b
}

// WithHost adds the request host unless it is empty.
func (b *SpanAttributeBuilder) WithHost(host string) *SpanAttributeBuilder {
	if host != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrHost, host))
	}
	return b
}

// WithStateSigned adds the signed-state indicator.
func (b *SpanAttributeBuilder) WithStateSigned(signed bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Bool(SpanAttrStateSigned, signed))
	return b
}

// Build returns the collected attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartRelaySpan starts a server span for a relay operation ("relay.<operation>").
func StartRelaySpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrOperation, operation))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "relay."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartExchangeSpan starts a client span for the outbound token exchange.
func StartExchangeSpan(ctx context.Context, provider string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrProvider, provider),
		attribute.String(SpanAttrOperation, OperationExchange),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "oauth.exchange",
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetSpanResult records the operation outcome on the span.
func SetSpanResult(span trace.Span, result string) {
	span.SetAttributes(attribute.String(SpanAttrResult, result))
}

// TraceID returns the hex trace ID of the span in ctx, or "" when ctx
// carries no valid span context.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
