package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Judge     JudgeConfig     `yaml:"judge"`
	Languages LanguagesConfig `yaml:"languages"`
	Results   ResultsConfig   `yaml:"results"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type JudgeConfig struct {
	ScratchRoot    string        `yaml:"scratch_root"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	MaxConcurrent  int64         `yaml:"max_concurrent"`
	MaxCodeBytes   int           `yaml:"max_code_bytes"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

// ToolchainConfig names the external binaries for one guest language.
// Compiler runs once per submission, Runtime once per test case.
type ToolchainConfig struct {
	Compiler string `yaml:"compiler"`
	Runtime  string `yaml:"runtime"`
}

type LanguagesConfig struct {
	CSharp     ToolchainConfig `yaml:"csharp"`
	TypeScript ToolchainConfig `yaml:"typescript"`
}

type ResultsConfig struct {
	Dir string `yaml:"dir"`
}

type SessionConfig struct {
	DefaultTimeBudget time.Duration `yaml:"default_time_budget"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second, // > run timeout * typical case count
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Judge: JudgeConfig{
			ScratchRoot:    filepath.Join(os.TempDir(), "exam-judge"),
			RunTimeout:     10 * time.Second,
			MaxConcurrent:  32,
			MaxCodeBytes:   1 << 20,
			MaxOutputBytes: 256 * 1024,
		},
		Languages: LanguagesConfig{
			CSharp:     ToolchainConfig{Compiler: "csc", Runtime: "mono"},
			TypeScript: ToolchainConfig{Compiler: "tsc", Runtime: "node"},
		},
		Results: ResultsConfig{
			Dir: "results",
		},
		Session: SessionConfig{
			DefaultTimeBudget: 30 * time.Minute,
		},
		Database: DatabaseConfig{
			DSN: "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Judge.RunTimeout < time.Second {
		return fmt.Errorf("judge.run_timeout must be >= 1s, got %s", c.Judge.RunTimeout)
	}
	if c.Judge.MaxConcurrent < 1 {
		return fmt.Errorf("judge.max_concurrent must be >= 1")
	}
	if c.Judge.MaxCodeBytes < 1 {
		return fmt.Errorf("judge.max_code_bytes must be >= 1")
	}
	if c.Judge.ScratchRoot == "" {
		return fmt.Errorf("judge.scratch_root must not be empty")
	}
	if c.Results.Dir == "" {
		return fmt.Errorf("results.dir must not be empty")
	}
	langs := []struct {
		name string
		tc   ToolchainConfig
	}{
		{"csharp", c.Languages.CSharp},
		{"typescript", c.Languages.TypeScript},
	}
	for _, l := range langs {
		if l.tc.Compiler == "" {
			return fmt.Errorf("languages.%s.compiler must not be empty", l.name)
		}
		if l.tc.Runtime == "" {
			return fmt.Errorf("languages.%s.runtime must not be empty", l.name)
		}
	}
	if c.Session.DefaultTimeBudget < time.Minute {
		return fmt.Errorf("session.default_time_budget must be >= 1m, got %s", c.Session.DefaultTimeBudget)
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
