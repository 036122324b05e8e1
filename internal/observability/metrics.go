package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and latency through the Conversation Orchestrator
//   - LLM request performance, token usage, and retry attempts
//   - Tool execution patterns and latencies through the Tool Scheduler
//   - Compression Engine trigger rate and compaction ratio
//   - Active session counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordTurn("anthropic", "claude-sonnet-4-20250514", "success", time.Since(start).Seconds())
type Metrics struct {
	// TurnDuration measures end-to-end orchestrator turn latency in seconds.
	// Labels: provider, model, status (success|error)
	TurnDuration *prometheus.HistogramVec

	// TurnCounter counts orchestrator turns by provider, model, and status.
	TurnCounter *prometheus.CounterVec

	// LLMRequestDuration measures a single generate-content call's latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts generate-content calls by provider, model, status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|candidates)
	LLMTokensUsed *prometheus.CounterVec

	// RetryAttempts counts retry attempts made by internal/retrypolicy.
	// Labels: model, outcome (retry|fallback|exhausted)
	RetryAttempts *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations scheduled by the
	// Tool Scheduler.
	// Labels: tool_name, status (success|error|rejected)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CompressionTriggered counts Compression Engine activations.
	// Labels: model
	CompressionTriggered *prometheus.CounterVec

	// CompressionRatio records the curated-history size reduction the
	// Compression Engine achieved, as compressed/original.
	// Labels: model
	CompressionRatio *prometheus.HistogramVec

	// ActiveSessions is a gauge tracking current active sessions.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures session lifetime in seconds.
	SessionDuration prometheus.Histogram

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (orchestrator|scheduler|session|store), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_turn_duration_seconds",
				Help:    "Duration of orchestrator turns in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model", "status"},
		),

		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_turns_total",
				Help: "Total number of orchestrator turns by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_retry_attempts_total",
				Help: "Total number of retry attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		CompressionTriggered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_compression_triggered_total",
				Help: "Total number of times the Compression Engine ran",
			},
			[]string{"model"},
		),

		CompressionRatio: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_compression_ratio",
				Help:    "Ratio of compressed to original curated history token count",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
			},
			[]string{"model"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Current number of active sessions",
			},
		),

		SessionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_session_duration_seconds",
				Help:    "Duration of sessions in seconds",
				Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800},
			},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordTurn records a completed orchestrator turn.
func (m *Metrics) RecordTurn(provider, model, status string, durationSeconds float64) {
	m.TurnCounter.WithLabelValues(provider, model, status).Inc()
	m.TurnDuration.WithLabelValues(provider, model, status).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for a single generate-content call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, candidateTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if candidateTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "candidates").Add(float64(candidateTokens))
	}
}

// RecordRetryAttempt records a retry decision made by internal/retrypolicy.
func (m *Metrics) RecordRetryAttempt(model, outcome string) {
	m.RetryAttempts.WithLabelValues(model, outcome).Inc()
}

// RecordToolExecution records metrics for a scheduled tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordCompression records a Compression Engine activation and the
// ratio of compressed to original token count it achieved.
func (m *Metrics) RecordCompression(model string, ratio float64) {
	m.CompressionTriggered.WithLabelValues(model).Inc()
	m.CompressionRatio.WithLabelValues(model).Observe(ratio)
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active sessions gauge and records session duration.
func (m *Metrics) SessionEnded(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
