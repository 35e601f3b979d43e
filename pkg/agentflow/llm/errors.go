package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for provider resolution and credentials.
var (
	// ErrUnknownProvider indicates a provider name with no registered adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredentials indicates no API key could be resolved for the
	// provider.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrNoMessage indicates a request with neither a message nor prior
	// conversation turns.
	ErrNoMessage = errors.New("no message to send")
)

// ProviderError wraps a failure from one provider adapter with enough
// context to identify which backend misbehaved.
type ProviderError struct {
	// Provider is the provider name, e.g. "anthropic".
	Provider string

	// Model is the model the request targeted.
	Model string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Provider, e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitError indicates the provider rejected or throttled a request for
// rate reasons. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	Provider   string
	Model      string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited by %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a rate-limit failure, either a typed
// RateLimitError or a provider error whose text matches the phrases the
// major backends use.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"quota exceeded",
		"resource exhausted",
		"overloaded",
		"429",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
