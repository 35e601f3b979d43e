package config

import "time"

// EngineConfig collects the engine-level settings usually loaded from a
// config file: default provider/model, retry policy, rate limits, and
// event delivery tuning.
type EngineConfig struct {
	// DefaultProvider is used when neither the request nor the
	// conversation names one.
	DefaultProvider string

	// DefaultModel is used when neither the request nor the conversation
	// names one.
	DefaultModel string

	// Retry bounds the rate-limit retry policy.
	Retry RetryConfig

	// RateLimit configures the proactive per-provider request window.
	RateLimit RateLimitConfig

	// EventBufferSize is the per-subscriber event channel buffer.
	EventBufferSize int
}

// RetryConfig bounds retry-with-backoff for rate-limited provider calls.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// RateLimitConfig configures the proactive rate tracker.
type RateLimitConfig struct {
	// RequestsPerWindow caps requests per provider+model inside Window.
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultEngine returns the engine defaults used when no config file is
// supplied.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		DefaultProvider: "anthropic",
		DefaultModel:    "",
		Retry: RetryConfig{
			MaxAttempts:    4,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 50,
			Window:            time.Minute,
		},
		EventBufferSize: 256,
	}
}

// Engine extracts an EngineConfig from a loaded Config, filling gaps from
// DefaultEngine.
func Engine(c Config) EngineConfig {
	def := DefaultEngine()

	out := EngineConfig{
		DefaultProvider: c.String("default_provider", def.DefaultProvider),
		DefaultModel:    c.String("default_model", def.DefaultModel),
		EventBufferSize: c.Int("event_buffer_size", def.EventBufferSize),
	}

	retry := c.Sub("retry")
	out.Retry = RetryConfig{
		MaxAttempts:    retry.Int("max_attempts", def.Retry.MaxAttempts),
		InitialBackoff: retry.Duration("initial_backoff", def.Retry.InitialBackoff),
		MaxBackoff:     retry.Duration("max_backoff", def.Retry.MaxBackoff),
		BackoffFactor:  retry.Float("backoff_factor", def.Retry.BackoffFactor),
	}

	limit := c.Sub("rate_limit")
	out.RateLimit = RateLimitConfig{
		RequestsPerWindow: limit.Int("requests_per_window", def.RateLimit.RequestsPerWindow),
		Window:            limit.Duration("window", def.RateLimit.Window),
	}

	return out
}
