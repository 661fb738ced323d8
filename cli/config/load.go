package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the conventional config filename looked up by callers
// that accept an optional --config flag.
const DefaultFilename = "foundry.yaml"

// Load reads a foundry YAML config file, expands ${VAR} references, and
// decodes it into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}
