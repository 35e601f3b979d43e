package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
)

func TestEnrichLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	enriched := observability.EnrichLogger(logger, "req-1", "node-1")
	enriched.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "req-1")
	assert.Contains(t, out, "node-1")
}

func TestLogHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	observability.LogFlowStart(logger, "req-1", []string{"a", "b"})
	observability.LogFlowComplete(logger, "req-1", 12.5)
	observability.LogFlowError(logger, "req-1", errors.New("boom"), 3.0)
	observability.LogFlowCancelled(logger, "req-1")
	observability.LogNodeStart(logger, "n1", true)
	observability.LogNodeComplete(logger, "n1", 1.0)
	observability.LogNodeError(logger, "n1", errors.New("bad"))
	observability.LogSuspended(logger, "n1")
	observability.LogResumed(logger, "n1")
	observability.LogCycleSkip(logger, "n1", "n2")
	observability.LogRateLimitWait(logger, "anthropic", "claude-sonnet-4-5", 1, time.Second)
	observability.LogLLMRequest(logger, "anthropic", "claude-sonnet-4-5", 42.0, nil)

	out := buf.String()
	assert.Contains(t, out, "req-1")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "anthropic")
}

func TestTimedOperation(t *testing.T) {
	done := observability.TimedOperation()
	time.Sleep(5 * time.Millisecond)
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, 1.0)
}

func TestNewMetricsRecorder(t *testing.T) {
	rec := observability.NewMetricsRecorder()
	require.NotNil(t, rec)

	// Must be safe without a configured meter provider.
	ctx := context.Background()
	rec.RecordNodeExecution(ctx, "n1", time.Millisecond, nil)
	rec.RecordFlowRun(ctx, true, time.Millisecond)
	rec.RecordLLMRequest(ctx, "anthropic", "m", time.Millisecond, errors.New("x"))
	rec.RecordTokens(ctx, "anthropic", "m", 10, 5, false)
	rec.RecordRateLimitWait(ctx, "anthropic", "m", time.Second)
}

func TestNoopImplementations(t *testing.T) {
	var m observability.MetricsRecorder = observability.NoopMetrics{}
	m.RecordFlowRun(context.Background(), true, 0)

	var s observability.SpanManager = observability.NoopSpanManager{}
	ctx, span := s.StartFlowSpan(context.Background(), "req-1")
	require.NotNil(t, ctx)
	s.EndSpanWithError(span, nil)
}
