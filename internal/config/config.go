// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree for the pips service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Solver  SolverConfig  `yaml:"solver"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig selects the LLM provider and models.
type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or
	// "anthropic".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// CriticModel optionally routes critique calls to a different model.
	// Empty means the main model critiques its own output.
	CriticModel string `yaml:"critic_model"`
}

// SolverConfig carries the solve loop defaults.
type SolverConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	Temperature      float64       `yaml:"temperature"`
	TopP             float64       `yaml:"top_p"`
	MaxTokens        int           `yaml:"max_tokens"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

// SandboxConfig configures the code execution sandbox.
type SandboxConfig struct {
	PythonPath string `yaml:"python_path"`
	WorkDir    string `yaml:"work_dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File enables rotated file output in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8420",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming endpoints need unbounded writes
			ShutdownTimeout: 15 * time.Second,
		},
		Model: ModelConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Solver: SolverConfig{
			MaxIterations:    8,
			Temperature:      0,
			TopP:             1,
			MaxTokens:        4096,
			MaxExecutionTime: 10 * time.Second,
		},
		Sandbox: SandboxConfig{
			PythonPath: "python3",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads the config file at path (optional) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. Secrets are
// expected here rather than in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PIPS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PIPS_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("PIPS_MODEL"); v != "" {
		c.Model.Model = v
	}
	if v := os.Getenv("PIPS_CRITIC_MODEL"); v != "" {
		c.Model.CriticModel = v
	}
	if v := os.Getenv("PIPS_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("PIPS_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "anthropic":
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("PIPS_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Solver.MaxIterations = n
		}
	}
	if v := os.Getenv("PIPS_PYTHON"); v != "" {
		c.Sandbox.PythonPath = v
	}
	if v := os.Getenv("PIPS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q", c.Model.Provider)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be positive, got %s", c.Solver.MaxExecutionTime)
	}
	return nil
}
