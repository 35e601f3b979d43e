package agentflow

import (
	"log/slog"

	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
)

// Option configures a Scheduler or Runner.
type Option func(*settings)

// settings collects the knobs shared by Runner and Scheduler.
type settings struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	engine  config.EngineConfig

	provider  string
	model     string
	sessionID string
}

func defaultSettings() settings {
	return settings{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		engine:  config.DefaultEngine(),
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
// Use observability.NewMetricsRecorder() for OTel metrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSpanManager enables tracing with the given span manager.
// Use observability.NewSpanManager() for OTel tracing.
func WithSpanManager(m observability.SpanManager) Option {
	return func(s *settings) {
		if m != nil {
			s.spans = m
		}
	}
}

// WithEngineConfig sets engine-level defaults (provider, model, retry,
// rate limits), usually loaded with config.EngineFromFile.
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(s *settings) {
		s.engine = cfg
	}
}

// WithDefaultProvider overrides the default provider for new conversations.
func WithDefaultProvider(provider string) Option {
	return func(s *settings) {
		s.provider = provider
	}
}

// WithDefaultModel overrides the default model for new conversations.
func WithDefaultModel(model string) Option {
	return func(s *settings) {
		s.model = model
	}
}

// WithSessionID stamps new conversations with a session identifier.
func WithSessionID(id string) Option {
	return func(s *settings) {
		s.sessionID = id
	}
}
