package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineFromFile loads engine settings from a yaml or json file, filling
// anything the file leaves out from DefaultEngine. The extension picks the
// format: .yaml, .yml, or .json.
func EngineFromFile(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read engine config: %w", err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c, err = FromYAML(data)
	case ".json":
		c, err = FromJSON(data)
	default:
		return EngineConfig{}, fmt.Errorf("unsupported engine config extension %q", filepath.Ext(path))
	}
	if err != nil {
		return EngineConfig{}, err
	}

	eng := Engine(c)
	if err := validateEngine(eng); err != nil {
		return EngineConfig{}, fmt.Errorf("engine config %s: %w", path, err)
	}
	return eng, nil
}

// validateEngine rejects settings the retry and rate-limit loops cannot
// run with.
func validateEngine(eng EngineConfig) error {
	if eng.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", eng.Retry.MaxAttempts)
	}
	if eng.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be at least 1, got %g", eng.Retry.BackoffFactor)
	}
	if eng.EventBufferSize < 0 {
		return fmt.Errorf("event_buffer_size must not be negative, got %d", eng.EventBufferSize)
	}
	return nil
}

// FromYAML parses yaml settings into a Config.
func FromYAML(data []byte) (Config, error) {
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}
	return New(m), nil
}

// FromJSON parses json settings into a Config.
func FromJSON(data []byte) (Config, error) {
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json config: %w", err)
	}
	return New(m), nil
}
