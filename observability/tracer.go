package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this module.
const TracerName = "github.com/kadirpekel/agentloop"

// NewTracerProvider builds a trace.TracerProvider using the given span
// processor (e.g. a batch processor wrapping an OTLP or stdout exporter
// configured by the embedder). Passing no processors yields a provider that
// still produces spans but exports nothing, useful for tests.
func NewTracerProvider(opts ...trace.TracerProviderOption) *trace.TracerProvider {
	return trace.NewTracerProvider(opts...)
}

// StartIterationSpan starts a span covering one agentic-loop iteration.
func StartIterationSpan(ctx context.Context, tp oteltrace.TracerProvider, iteration int) (context.Context, oteltrace.Span) {
	tracer := tp.Tracer(TracerName)
	return tracer.Start(ctx, "agentloop.iteration",
		oteltrace.WithAttributes(attribute.Int("agentloop.iteration", iteration)))
}

// StartToolSpan starts a span covering one tool execution.
func StartToolSpan(ctx context.Context, tp oteltrace.TracerProvider, toolName string) (context.Context, oteltrace.Span) {
	tracer := tp.Tracer(TracerName)
	return tracer.Start(ctx, "agentloop.tool_call",
		oteltrace.WithAttributes(attribute.String("agentloop.tool", toolName)))
}

// Global installs tp as the process-wide default tracer provider, mirroring
// the teacher's observability manager's global-registration convenience.
func Global(tp oteltrace.TracerProvider) {
	otel.SetTracerProvider(tp)
}
