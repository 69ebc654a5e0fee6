package livediff

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds the tunable settings of a live handler.
type Config struct {
	// Addr is the listen address of the serving binary, unused by the
	// handler itself.
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`

	// SessionTTL is how long an idle session survives before cleanup.
	SessionTTL Duration `yaml:"session_ttl,omitempty"`

	// TokenTTL bounds the lifetime of join tokens.
	TokenTTL Duration `yaml:"token_ttl,omitempty"`

	// MaxMemoryMB caps the total memory spent retaining rendered trees.
	MaxMemoryMB int `yaml:"max_memory_mb,omitempty" validate:"gte=0"`

	// Minify controls whether static HTML segments are minified before
	// they go over the wire.
	Minify bool `yaml:"minify,omitempty"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:8080",
		SessionTTL:  Duration(24 * time.Hour),
		TokenTTL:    Duration(24 * time.Hour),
		MaxMemoryMB: 100,
		Minify:      false,
	}
}

// LoadConfig reads and validates a YAML config file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}
