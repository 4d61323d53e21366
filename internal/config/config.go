package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the storage engine.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Bloom   BloomConfig   `yaml:"bloom"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds storage engine configuration.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	TableDir     string `yaml:"table_dir"`
	MaxOpenFiles int    `yaml:"max_open_files"`
	NumLevels    int    `yaml:"num_levels"`
	ScanWorkers  int    `yaml:"scan_workers"`
}

// BloomConfig holds bloom filter configuration.
type BloomConfig struct {
	BitsPerKey int `yaml:"bits_per_key"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/quarry"
	}
	if cfg.Storage.TableDir == "" {
		cfg.Storage.TableDir = cfg.Storage.DataDir + "/tables"
	}
	if cfg.Storage.MaxOpenFiles == 0 {
		cfg.Storage.MaxOpenFiles = 1024
	}
	if cfg.Storage.NumLevels == 0 {
		cfg.Storage.NumLevels = 7
	}
	if cfg.Storage.ScanWorkers == 0 {
		cfg.Storage.ScanWorkers = 8
	}
	if cfg.Bloom.BitsPerKey == 0 {
		cfg.Bloom.BitsPerKey = 10
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.MaxOpenFiles < 1 {
		return fmt.Errorf("storage.max_open_files must be positive")
	}
	if c.Storage.NumLevels < 1 {
		return fmt.Errorf("storage.num_levels must be positive")
	}
	if c.Bloom.BitsPerKey < 1 {
		return fmt.Errorf("bloom.bits_per_key must be positive")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
