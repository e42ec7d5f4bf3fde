// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the dirigent gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets spans the latency range of LLM inference, 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: LLMBuckets}, labels)
}

var (
	// Gateway-level request metrics.
	RequestsTotal   = counter("dirigent_requests_total", "Total requests", "method", "status", "model")
	RequestDuration = histogram("dirigent_request_duration_seconds", "Request duration", "method", "model")

	// StreamingConnections gauges SSE streams currently open.
	StreamingConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dirigent_streaming_connections_active",
		Help: "Active streaming connections",
	})

	// Backend provider traffic.
	ProviderRequestsTotal = counter("dirigent_provider_requests_total", "Provider requests", "provider", "model", "status")
	ProviderLatency       = histogram("dirigent_provider_latency_seconds", "Provider latency", "provider", "model")
	ProviderTokensTotal   = counter("dirigent_provider_tokens_total", "Token count", "provider", "model", "direction")

	// ToolExecutionsTotal counts tool runs by name and outcome.
	ToolExecutionsTotal = counter("dirigent_tool_executions_total", "Tool executions", "tool_name", "status")

	// InferIterationsTotal counts agentic-loop iterations per terminal
	// response status, so budget exhaustion shows up as an
	// incomplete-heavy distribution.
	InferIterationsTotal = counter("dirigent_infer_iterations_total", "Inference iterations by response status", "status")

	// SafetyChecksTotal counts guardrail evaluations by check and verdict.
	SafetyChecksTotal = counter("dirigent_safety_checks_total", "Safety check evaluations", "check", "verdict")

	// RateLimitRejectedTotal counts requests the rate limiter refused.
	RateLimitRejectedTotal = counter("dirigent_ratelimit_rejected_total", "Rate limit rejections", "tier")
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		InferIterationsTotal,
		SafetyChecksTotal,
		RateLimitRejectedTotal,
	)
}
