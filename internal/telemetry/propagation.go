package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext holds W3C trace context fields in a form that can be sent
// over a wire. The rmi invocation framing has no field for it, so stubs
// do not send one.
type TraceContext struct {
	TraceParent string
	TraceState  string
}

// Empty reports whether tc carries no trace context at all.
func (tc TraceContext) Empty() bool { return tc.TraceParent == "" }

// Extract reads the active trace context out of ctx for transmission
// over the wire. Returns a zero TraceContext if p is disabled.
func Extract(ctx context.Context, p *Provider) TraceContext {
	if !p.Enabled() {
		return TraceContext{}
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{
		TraceParent: carrier.Get("traceparent"),
		TraceState:  carrier.Get("tracestate"),
	}
}

// Inject merges tc into ctx so a server span started from the result
// becomes a child of the originating client span.
func Inject(ctx context.Context, tc TraceContext) context.Context {
	if tc.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{
		"traceparent": tc.TraceParent,
		"tracestate":  tc.TraceState,
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// TraceID returns the hex trace ID active in ctx, or "" if none.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
