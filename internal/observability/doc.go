// Package observability provides the three observability pillars for
// the agent orchestration core: Prometheus metrics, redacting
// structured logging, and OpenTelemetry tracing.
//
// # Overview
//
//  1. Metrics - turn throughput, LLM request latency/retries, tool
//     scheduler execution, compression triggers, and active session
//     counts, via Prometheus
//  2. Logging - a slog.Handler that redacts secrets before they reach
//     the sink and correlates records by request/session/turn id
//  3. Tracing - per-turn and per-tool spans via OpenTelemetry
//
// # Metrics
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... run the model generation step ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-5", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	start = time.Now()
//	// ... execute a scheduled tool call ...
//	metrics.RecordToolExecution("read_file", "success", time.Since(start).Seconds())
//
// # Logging
//
// NewLogger returns a *slog.Logger backed by a redactingHandler, so it
// is a drop-in replacement everywhere a *slog.Logger is already
// threaded (orchestrator, scheduler, session manager, tools):
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  cfg.Observability.LogLevel,
//	    Format: cfg.Observability.LogFormat,
//	})
//
//	ctx = observability.AddSessionID(ctx, state.SessionID)
//	ctx = observability.AddTurnID(ctx, turnID)
//	logger.WarnContext(ctx, "model returned no content after a function response")
//
//	// Secrets passed as attribute values are redacted automatically.
//	logger.Error("provider request failed", "error", err, "api_key", apiKey)
//
// # Tracing
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "agentcore",
//	    Endpoint:    cfg.Observability.OTLPEndpoint,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceLLMRequest(ctx, "anthropic", "claude-sonnet-4-5")
//	defer span.End()
//
// # Security Considerations
//
// The logging component redacts, by pattern:
//   - API keys (Anthropic, OpenAI, and other provider formats)
//   - Passwords, secrets, bearer tokens
//   - JWTs
//   - Any attribute whose key names a known-sensitive field
//     (password, secret, token, api_key, auth, ...), regardless of
//     value shape
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
