package config

import (
	"fmt"
	"time"
)

// Config represents a foundry.yaml configuration file.
// All values are optional and act as defaults for foundry run flags.
// CLI flags always override config values.
type Config struct {
	SessionID      string          `yaml:"session_id"`
	Workdir        string          `yaml:"workdir"`
	PackageManager string          `yaml:"package_manager"`
	Events         string          `yaml:"events"`
	NoBootstrap    bool            `yaml:"no_bootstrap"`
	Policy         PolicyConfig    `yaml:"policy"`
	Preview        PreviewConfig   `yaml:"preview"`
	Bootstrap      BootstrapConfig `yaml:"bootstrap"`
	Adapter        AdapterConfig   `yaml:"adapter"`
}

// PolicyConfig holds flush policy defaults from the config file.
type PolicyConfig struct {
	Name        string   `yaml:"name"`
	QuietWindow Duration `yaml:"quiet_window,omitempty"`
}

// PreviewConfig holds preview server defaults from the config file.
type PreviewConfig struct {
	Port       int `yaml:"port"`
	StaticPort int `yaml:"static_port"`
}

// BootstrapConfig holds supervisor timing defaults from the config file.
type BootstrapConfig struct {
	InstallTimeout Duration `yaml:"install_timeout,omitempty"`
	ReadyTimeout   Duration `yaml:"ready_timeout,omitempty"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
