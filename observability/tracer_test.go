package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kadirpekel/agentloop/observability"
)

func TestStartIterationSpanRecordsAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := observability.NewTracerProvider(trace.WithSpanProcessor(recorder))

	_, span := observability.StartIterationSpan(context.Background(), tp, 3)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "agentloop.iteration", spans[0].Name())

	var found bool
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "agentloop.iteration" && kv.Value.AsInt64() == 3 {
			found = true
		}
	}
	require.True(t, found)
}

func TestStartToolSpanRecordsToolName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := observability.NewTracerProvider(trace.WithSpanProcessor(recorder))

	_, span := observability.StartToolSpan(context.Background(), tp, "search")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "agentloop.tool_call", spans[0].Name())
}
