package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestNewNoop_DisabledByDefault(t *testing.T) {
	p := NewNoop()
	if p.Enabled() {
		t.Fatal("expected a no-op provider to report disabled")
	}
}

func TestNew_DisabledConfigReturnsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if p.Enabled() {
		t.Fatal("expected Enabled() false for Config{Enabled: false}")
	}
}

func TestStartSpanAndServerSpan_NoopProviderDoesNotPanic(t *testing.T) {
	p := NewNoop()
	ctx, span := StartSpan(context.Background(), p, "Widget.Render", 42)
	SetSpanOK(span)
	span.End()

	ctx2, span2 := StartServerSpan(ctx, p, "Widget.Render", 42)
	SetSpanError(span2, errors.New("boom"), "widget.RenderError")
	span2.End()

	if TraceID(ctx2) != "" {
		t.Fatal("expected empty trace ID from a no-op tracer")
	}
}

func TestExtractInject_RoundTripsEmptyContext(t *testing.T) {
	p := NewNoop()
	tc := Extract(context.Background(), p)
	if !tc.Empty() {
		t.Fatal("expected an empty TraceContext from a disabled provider")
	}

	ctx := Inject(context.Background(), tc)
	if TraceID(ctx) != "" {
		t.Fatal("expected injecting an empty TraceContext to be a no-op")
	}
}

func TestShutdown_NoopProviderIsSafe(t *testing.T) {
	p := NewNoop()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on no-op provider returned error: %v", err)
	}
}
