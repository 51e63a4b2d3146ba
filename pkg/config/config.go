// Package config provides configuration loading and management for fits2hdf5.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers specifies how many goroutines the reduction passes fan
		// out over
		Workers int `yaml:"workers"`

		// TileSize is the chunk edge length applied to the trailing two
		// axes of chunked datasets
		TileSize int `yaml:"tileSize"`
	} `yaml:"processing"`

	// Mipmap parameters
	Mipmaps struct {
		// Enabled requests generation of downsampled datasets
		Enabled bool `yaml:"enabled"`

		// MinEdge stops the mip progression once either spatial axis of
		// the next level would fall below it
		MinEdge int `yaml:"minEdge"`
	} `yaml:"mipmaps"`

	// Converter identity written into the output file
	Converter struct {
		// SchemaVersion is the output schema version attribute
		SchemaVersion string `yaml:"schemaVersion"`

		// Name identifies the converter in the output file
		Name string `yaml:"name"`

		// Version is the converter version attribute
		Version string `yaml:"version"`
	} `yaml:"converter"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.TileSize = 512

	cfg.Mipmaps.Enabled = false
	cfg.Mipmaps.MinEdge = 128

	cfg.Converter.SchemaVersion = "0.1"
	cfg.Converter.Name = "fits2hdf5"
	cfg.Converter.Version = "0.1.4"

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}
