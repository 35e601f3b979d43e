package llm

import (
	"fmt"
	"os"
	"strings"
)

// KeyStore resolves API credentials for a provider.
type KeyStore interface {
	// Key returns the API key for the named provider, or an error
	// wrapping ErrMissingCredentials when none is available.
	Key(provider string) (string, error)
}

// EnvKeyStore resolves keys from environment variables of the form
// <PROVIDER>_API_KEY, e.g. ANTHROPIC_API_KEY.
type EnvKeyStore struct{}

// Key implements KeyStore.
func (EnvKeyStore) Key(provider string) (string, error) {
	name := strings.ToUpper(provider) + "_API_KEY"
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: set %s", ErrMissingCredentials, name)
}

// StaticKeys resolves keys from an in-memory map, keyed by provider name.
type StaticKeys map[string]string

// Key implements KeyStore.
func (s StaticKeys) Key(provider string) (string, error) {
	if v, ok := s[provider]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: no key for provider %q", ErrMissingCredentials, provider)
}
