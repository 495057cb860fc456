package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the diagwarp configuration file (~/.config/diagwarp/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	// Device
	Backend     string `yaml:"backend"`
	Workers     *int64 `yaml:"workers"`
	MemoryLimit *int64 `yaml:"memory_limit"`
	BlockSize   *int64 `yaml:"block_size"`

	// Alignment
	Distance string `yaml:"distance"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Batch
	BatchConcurrency *int64 `yaml:"batch_concurrency"`
}

const envConfigPath = "DIAGWARP_CONFIG"

func configPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "diagwarp", "config.yaml")
}

// applyLoggingConfig applies config file defaults to the root logging flags.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyDeviceConfig applies config file defaults to the device and
// distance flags when the corresponding CLI flag was not explicitly set.
func applyDeviceConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.MemoryLimit != nil && !c.IsSet("memory-limit") {
		memoryLimit = *cfg.MemoryLimit
	}
	if cfg.BlockSize != nil && !c.IsSet("block-size") {
		blockSize = *cfg.BlockSize
	}
	if cfg.Distance != "" && !c.IsSet("distance") {
		distanceName = cfg.Distance
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyDeviceConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// applyBatchConfig applies config file defaults to batch command variables.
func applyBatchConfig(c *cli.Command, cfg Config, concurrency *int64) {
	applyDeviceConfig(c, cfg)
	if cfg.BatchConcurrency != nil && !c.IsSet("concurrency") {
		*concurrency = *cfg.BatchConcurrency
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
