// Package observability provides structured logging, metrics, and tracing
// for the flow engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds flow context to a logger.
// Returns a new logger with request_id and node_id fields.
func EnrichLogger(logger *slog.Logger, requestID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("request_id", requestID),
		slog.String("node_id", nodeID),
	)
}

// LogFlowStart logs the start of a flow execution.
func LogFlowStart(logger *slog.Logger, requestID string, entryNodes []string) {
	if logger == nil {
		return
	}
	logger.Info("flow starting",
		slog.String("request_id", requestID),
		slog.Any("entry_nodes", entryNodes),
	)
}

// LogFlowComplete logs successful flow completion.
func LogFlowComplete(logger *slog.Logger, requestID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("flow completed",
		slog.String("request_id", requestID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFlowError logs flow failure.
func LogFlowError(logger *slog.Logger, requestID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("flow failed",
		slog.String("request_id", requestID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFlowCancelled logs a cooperative stop.
func LogFlowCancelled(logger *slog.Logger, requestID string) {
	if logger == nil {
		return
	}
	logger.Info("flow cancelled",
		slog.String("request_id", requestID),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, push bool) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Bool("push", push),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSuspended logs a node parking on external input.
func LogSuspended(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Info("node waiting for input",
		slog.String("node_id", nodeID),
	)
}

// LogResumed logs a pending input wait being satisfied.
func LogResumed(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Info("node input resolved",
		slog.String("node_id", nodeID),
	)
}

// LogCycleSkip logs a pull edge skipped by the cycle guard.
func LogCycleSkip(logger *slog.Logger, nodeID, sourceID string) {
	if logger == nil {
		return
	}
	logger.Debug("pull edge skipped, source already on pull path",
		slog.String("node_id", nodeID),
		slog.String("source_id", sourceID),
	)
}

// LogRateLimitWait logs a proactive or retry-triggered rate-limit delay.
func LogRateLimitWait(logger *slog.Logger, provider, model string, attempt int, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("rate limit wait",
		slog.String("provider", provider),
		slog.String("model", model),
		slog.Int("attempt", attempt),
		slog.Duration("wait", wait),
	)
}

// LogLLMRequest logs the outcome of one orchestrated provider call.
func LogLLMRequest(logger *slog.Logger, provider, model string, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("llm request failed",
			slog.String("provider", provider),
			slog.String("model", model),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("llm request completed",
		slog.String("provider", provider),
		slog.String("model", model),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
