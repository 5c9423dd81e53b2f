package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for the agentic loop, tool pipeline,
// and context manager (spec §6's observability surface). Grounded on the
// teacher's pkg/observability/metrics.go counter/histogram-vector layout,
// narrowed to the metrics this module's components actually emit.
type Metrics struct {
	registry *prometheus.Registry

	iterationsTotal   *prometheus.CounterVec
	iterationDuration *prometheus.HistogramVec

	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	toolCallErrors    *prometheus.CounterVec
	circuitBreakerOpen *prometheus.GaugeVec

	compactionsTotal    *prometheus.CounterVec
	compactionFreedTok  *prometheus.HistogramVec
	contextUtilization  *prometheus.GaugeVec

	approvalsTotal *prometheus.CounterVec
}

// NewMetrics builds a Metrics collector registered against a fresh
// registry. Pass nil to disable metrics entirely (all recording methods on
// a nil *Metrics are no-ops).
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.iterationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentloop_iterations_total",
		Help: "Total agentic loop iterations, by terminal outcome.",
	}, []string{"outcome"})

	m.iterationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentloop_iteration_duration_seconds",
		Help:    "Duration of a single loop iteration.",
		Buckets: prometheus.DefBuckets,
	}, []string{})

	m.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentloop_tool_calls_total",
		Help: "Total tool invocations, by tool name and outcome.",
	}, []string{"tool", "outcome"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentloop_tool_call_duration_seconds",
		Help:    "Duration of a tool invocation including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	m.toolCallErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentloop_tool_call_errors_total",
		Help: "Tool invocation errors, by tool and error kind.",
	}, []string{"tool", "kind"})

	m.circuitBreakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentloop_circuit_breaker_open",
		Help: "1 if the tool's circuit breaker is open, else 0.",
	}, []string{"tool"})

	m.compactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentloop_compactions_total",
		Help: "Context compactions performed, by strategy.",
	}, []string{"strategy"})

	m.compactionFreedTok = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentloop_compaction_freed_tokens",
		Help:    "Tokens freed per compaction.",
		Buckets: prometheus.ExponentialBuckets(64, 2, 12),
	}, []string{"strategy"})

	m.contextUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentloop_context_utilization_ratio",
		Help: "Current context token usage as a fraction of the effective cap.",
	}, []string{})

	m.approvalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentloop_approvals_total",
		Help: "Permission approval decisions, by tool and decision.",
	}, []string{"tool", "decision"})

	m.registry.MustRegister(
		m.iterationsTotal, m.iterationDuration,
		m.toolCallsTotal, m.toolCallDuration, m.toolCallErrors, m.circuitBreakerOpen,
		m.compactionsTotal, m.compactionFreedTok, m.contextUtilization,
		m.approvalsTotal,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordIteration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.iterationsTotal.WithLabelValues(outcome).Inc()
	m.iterationDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *Metrics) RecordToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) RecordToolError(tool, kind string) {
	if m == nil {
		return
	}
	m.toolCallErrors.WithLabelValues(tool, kind).Inc()
}

func (m *Metrics) SetCircuitBreakerOpen(tool string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	m.circuitBreakerOpen.WithLabelValues(tool).Set(v)
}

func (m *Metrics) RecordCompaction(strategy string, freedTokens int) {
	if m == nil {
		return
	}
	m.compactionsTotal.WithLabelValues(strategy).Inc()
	m.compactionFreedTok.WithLabelValues(strategy).Observe(float64(freedTokens))
}

func (m *Metrics) SetContextUtilization(ratio float64) {
	if m == nil {
		return
	}
	m.contextUtilization.WithLabelValues().Set(ratio)
}

func (m *Metrics) RecordApproval(tool, decision string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(tool, decision).Inc()
}
