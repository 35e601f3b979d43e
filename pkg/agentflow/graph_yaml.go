package agentflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadGraphFile reads and validates a graph definition from a YAML or JSON
// file, selected by extension.
func LoadGraphFile(path string) (GraphDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GraphDefinition{}, fmt.Errorf("reading graph file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseGraphYAML(data)
	case ".json":
		return ParseGraphJSON(data)
	default:
		return GraphDefinition{}, fmt.Errorf("unsupported graph file extension: %s", filepath.Ext(path))
	}
}

// ParseGraphYAML decodes and validates a YAML graph definition.
func ParseGraphYAML(data []byte) (GraphDefinition, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return GraphDefinition{}, fmt.Errorf("parsing graph yaml: %w", err)
	}
	if err := def.Validate(); err != nil {
		return GraphDefinition{}, err
	}
	return def, nil
}

// ParseGraphJSON decodes and validates a JSON graph definition.
func ParseGraphJSON(data []byte) (GraphDefinition, error) {
	var def GraphDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return GraphDefinition{}, fmt.Errorf("parsing graph json: %w", err)
	}
	if err := def.Validate(); err != nil {
		return GraphDefinition{}, err
	}
	return def, nil
}
