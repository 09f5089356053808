package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys used around stub/skeleton invocations.
const (
	AttrMethodName   = attribute.Key("novarmi.method_name")
	AttrObjectID     = attribute.Key("novarmi.object_id")
	AttrObjectType   = attribute.Key("novarmi.object_type")
	AttrChannelID    = attribute.Key("novarmi.channel_id")
	AttrAsync        = attribute.Key("novarmi.async")
	AttrFailureClass = attribute.Key("novarmi.failure_class")
)

// StartSpan opens a client span for an outgoing stub invocation.
func StartSpan(ctx context.Context, p *Provider, method string, objectID uint64) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "novarmi.invoke "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrMethodName.String(method),
			AttrObjectID.Int64(int64(objectID)),
		),
	)
}

// StartServerSpan opens a server span for an incoming skeleton dispatch,
// continuing whatever trace context ctx already carries. Extract and
// Inject convert between a context and a TraceContext; the rmi
// invocation framing carries no TraceContext, and its skeleton passes a
// fresh context here.
func StartServerSpan(ctx context.Context, p *Provider, method string, objectID uint64) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "novarmi.dispatch "+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			AttrMethodName.String(method),
			AttrObjectID.Int64(int64(objectID)),
		),
	)
}

// SpanFromContext returns the current span in ctx.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError marks span as failed with err and records it as an event.
func SetSpanError(span trace.Span, err error, failureClass string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if failureClass != "" {
		span.SetAttributes(AttrFailureClass.String(failureClass))
	}
}

// SetSpanOK marks span as having completed successfully.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
