package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flow engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordFlowRun records a flow run completion.
	RecordFlowRun(ctx context.Context, success bool, duration time.Duration)

	// RecordLLMRequest records one orchestrated provider call.
	RecordLLMRequest(ctx context.Context, provider, model string, duration time.Duration, err error)

	// RecordTokens records token usage for a provider call.
	RecordTokens(ctx context.Context, provider, model string, input, output int64, estimated bool)

	// RecordRateLimitWait records a rate-limit delay.
	RecordRateLimitWait(ctx context.Context, provider, model string, wait time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	flowRuns       metric.Int64Counter
	flowLatency    metric.Float64Histogram
	llmRequests    metric.Int64Counter
	llmLatency     metric.Float64Histogram
	tokens         metric.Int64Counter
	rateLimitWaits metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("agentflow")

	nodeExecutions, err := meter.Int64Counter("agentflow.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("agentflow.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("agentflow.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	flowRuns, err := meter.Int64Counter("agentflow.flow.runs",
		metric.WithDescription("Number of flow runs"),
	)
	if err != nil {
		return nil, err
	}

	flowLatency, err := meter.Float64Histogram("agentflow.flow.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	llmRequests, err := meter.Int64Counter("agentflow.llm.requests",
		metric.WithDescription("Number of orchestrated provider calls"),
	)
	if err != nil {
		return nil, err
	}

	llmLatency, err := meter.Float64Histogram("agentflow.llm.latency_ms",
		metric.WithDescription("Provider call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Int64Counter("agentflow.llm.tokens",
		metric.WithDescription("Token usage by direction"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitWaits, err := meter.Float64Histogram("agentflow.llm.rate_limit_wait_ms",
		metric.WithDescription("Rate-limit wait durations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		flowRuns:       flowRuns,
		flowLatency:    flowLatency,
		llmRequests:    llmRequests,
		llmLatency:     llmLatency,
		tokens:         tokens,
		rateLimitWaits: rateLimitWaits,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFlowRun records a flow run.
func (m *otelMetrics) RecordFlowRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.flowRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.flowLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordLLMRequest records one orchestrated provider call.
func (m *otelMetrics) RecordLLMRequest(ctx context.Context, provider, model string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordTokens records token usage by direction.
func (m *otelMetrics) RecordTokens(ctx context.Context, provider, model string, input, output int64, estimated bool) {
	base := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("estimated", estimated),
	}
	m.tokens.Add(ctx, input, metric.WithAttributes(append(base, attribute.String("direction", "input"))...))
	m.tokens.Add(ctx, output, metric.WithAttributes(append(base, attribute.String("direction", "output"))...))
}

// RecordRateLimitWait records a rate-limit delay.
func (m *otelMetrics) RecordRateLimitWait(ctx context.Context, provider, model string, wait time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
	}
	m.rateLimitWaits.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
