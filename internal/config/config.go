// Package config loads the demo binary's settings from a YAML file. The
// core library never touches the filesystem itself — this package exists
// only for cmd/neatvnc-demo.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete demo configuration.
type Config struct {
	Display DisplayConfig `yaml:"display"`
	Encoder EncoderConfig `yaml:"encoder"`
}

// DisplayConfig describes the virtual screen the demo serves.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// EncoderConfig describes default encode settings.
type EncoderConfig struct {
	// Quality is one of "lossless", "high", "low".
	Quality string `yaml:"quality"`
	// PreferH264 is loaded from the file but not read by any component
	// in this module; it does not select an encoding.
	PreferH264 bool `yaml:"prefer_h264"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
		return fmt.Errorf("display width/height must be positive, got %dx%d", cfg.Display.Width, cfg.Display.Height)
	}
	switch cfg.Encoder.Quality {
	case "", "lossless", "high", "low":
	default:
		return fmt.Errorf("unknown encoder quality %q (want lossless, high or low)", cfg.Encoder.Quality)
	}
	return nil
}
