// Package config loads the rasch configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingSection is returned when the document has no rasch_config key.
var ErrMissingSection = errors.New("config has no rasch_config section")

// Config holds all rasch configuration.
type Config struct {
	DefaultEncoding      string `yaml:"default_encoding"`
	DefaultEnvironment   string `yaml:"default_environment"`
	EncodingsPath        string `yaml:"asp_encodings_path"`
	InstancesPath        string `yaml:"asp_instances_path"`
	EnvironmentsPath     string `yaml:"flatland_environments_path"`
	SolverOutputPath     string `yaml:"solver_output_path"`
	StatisticsOutputPath string `yaml:"statistics_output_path"`
	DatabasePath         string `yaml:"database_path"`
	DefaultLimit         int    `yaml:"default_limit"`

	Solver  SolverConfig  `yaml:"solver"`
	Replay  ReplayConfig  `yaml:"replay"`
	Bench   BenchConfig   `yaml:"bench"`
	Logging LoggingConfig `yaml:"logging"`
}

// SolverConfig configures the rule-set engine.
type SolverConfig struct {
	MaxModels int `yaml:"max_models"`
	FactLimit int `yaml:"fact_limit"`
}

// ReplayConfig configures rendering during replay.
type ReplayConfig struct {
	StepDelay string `yaml:"step_delay"`
}

// BenchConfig configures benchmark batches.
type BenchConfig struct {
	Parallelism int    `yaml:"parallelism"`
	Timeout     string `yaml:"timeout"`
	MetricsFile string `yaml:"metrics_file"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultEncoding:      "rasch",
		DefaultEnvironment:   "simple_loop_map",
		EncodingsPath:        "data/encodings",
		InstancesPath:        "data/instances",
		EnvironmentsPath:     "data/environments",
		SolverOutputPath:     "data/solver",
		StatisticsOutputPath: "data/statistics",
		DatabasePath:         "data/rasch.db",
		DefaultLimit:         20,

		Solver: SolverConfig{
			MaxModels: 4,
			FactLimit: 500000,
		},
		Replay: ReplayConfig{
			StepDelay: "500ms",
		},
		Bench: BenchConfig{
			Parallelism: 4,
			Timeout:     "60s",
			MetricsFile: "data/statistics/rasch.prom",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

type document struct {
	Rasch *Config `yaml:"rasch_config"`
}

// Load reads configuration from a YAML file. A missing file yields the defaults;
// a file without a rasch_config section is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Parse validates data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	section, ok := raw["rasch_config"]
	if !ok {
		return ErrMissingSection
	}
	settings, _ := section.(map[string]any)
	if settings == nil {
		settings = map[string]any{}
	}
	if err := ValidateSettings(settings); err != nil {
		return err
	}

	doc := document{Rasch: cfg}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(document{Rasch: c})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("RASCH_DB"); path != "" {
		c.DatabasePath = path
	}
	if level := os.Getenv("RASCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetStepDelay returns the replay step delay as a duration.
func (c *Config) GetStepDelay() time.Duration {
	d, err := time.ParseDuration(c.Replay.StepDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetBenchTimeout returns the per-run benchmark timeout as a duration.
func (c *Config) GetBenchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Bench.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// EncodingPath returns the rule-set file for an encoding name.
func (c *Config) EncodingPath(name string) string {
	return filepath.Join(c.EncodingsPath, name+".mg")
}

// EnvironmentPath returns the environment file for an environment name.
func (c *Config) EnvironmentPath(name string) string {
	return filepath.Join(c.EnvironmentsPath, name+".yaml")
}
