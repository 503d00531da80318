package slides

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a dashboard from JSON or YAML, chosen by the file extension hint
func Parse(data []byte, ext string) (*Dashboard, error) {
	var d Dashboard
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yml", "yaml":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse dashboard yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse dashboard json: %w", err)
		}
	default:
		// YAML is a superset of the JSON the HTTP surface sends
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse dashboard: %w", err)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadFile reads a dashboard definition from disk
func LoadFile(path string) (*Dashboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}
