package observability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/observability"
)

func gaugeValue(t *testing.T, m *observability.Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with label %s not found", name, label)
	return 0
}

// counterValue matches wantLabels positionally against the gathered label
// values, which Gather reports sorted by label name.
func counterValue(t *testing.T, m *observability.Metrics, name string, wantLabels []string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			values := make([]string, len(metric.GetLabel()))
			for i, lp := range metric.GetLabel() {
				values[i] = lp.GetValue()
			}
			if len(values) != len(wantLabels) {
				continue
			}
			match := true
			for i := range values {
				if values[i] != wantLabels[i] {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, wantLabels)
	return 0
}

func TestRecordToolCallIncrementsCounterAndHistogram(t *testing.T) {
	m := observability.NewMetrics()
	m.RecordToolCall("search", "ok", 10*time.Millisecond)
	m.RecordToolCall("search", "ok", 20*time.Millisecond)

	require.Equal(t, 2.0, counterValue(t, m, "agentloop_tool_calls_total", []string{"ok", "search"}))
}

func TestSetCircuitBreakerOpenTogglesGauge(t *testing.T) {
	m := observability.NewMetrics()
	m.SetCircuitBreakerOpen("flaky_tool", true)
	require.Equal(t, 1.0, gaugeValue(t, m, "agentloop_circuit_breaker_open", "flaky_tool"))

	m.SetCircuitBreakerOpen("flaky_tool", false)
	require.Equal(t, 0.0, gaugeValue(t, m, "agentloop_circuit_breaker_open", "flaky_tool"))
}

func TestRecordApprovalByDecision(t *testing.T) {
	m := observability.NewMetrics()
	m.RecordApproval("deploy", "approved")
	m.RecordApproval("deploy", "denied")

	require.Equal(t, 1.0, counterValue(t, m, "agentloop_approvals_total", []string{"approved", "deploy"}))
	require.Equal(t, 1.0, counterValue(t, m, "agentloop_approvals_total", []string{"denied", "deploy"}))
}

func TestNilMetricsRecordingIsNoOp(t *testing.T) {
	var m *observability.Metrics
	require.NotPanics(t, func() {
		m.RecordToolCall("x", "ok", time.Millisecond)
		m.RecordIteration("complete", time.Millisecond)
		m.SetCircuitBreakerOpen("x", true)
		m.RecordCompaction("default_rolling", 100)
		m.SetContextUtilization(0.5)
		m.RecordApproval("x", "approved")
		m.RecordToolError("x", "timeout")
	})
}
