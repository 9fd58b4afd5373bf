package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Hermes   HermesConfig    `yaml:"hermes"`
	Ingest   IngestConfig    `yaml:"ingest"`
	Runner   RunnerConfig    `yaml:"runner"`
	Scoring  ScoringConfig   `yaml:"scoring"`
	Approval approval.Config `yaml:"approval"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

// IngestConfig points at the upstream signal service. An empty URL means
// signals are read from the database.
type IngestConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RunnerConfig struct {
	Workers    int `yaml:"workers"`
	IntervalMs int `yaml:"interval_ms"`
}

// ScoringConfig lists the composite profiles. Each profile replaces the
// built-in profile with the same name; unknown names add a new composite.
type ScoringConfig struct {
	Profiles []scoring.Profile `yaml:"profiles"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Runner.IntervalMs) * time.Millisecond
}

func (c *Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutMs) * time.Millisecond
}

// ScoringProfiles merges configured profiles over the defaults, keeping
// default order first.
func (c *Config) ScoringProfiles() []scoring.Profile {
	profiles := scoring.DefaultProfiles()
	index := make(map[string]int, len(profiles))
	for i, p := range profiles {
		index[p.Spec.Name] = i
	}
	for _, p := range c.Scoring.Profiles {
		if i, ok := index[p.Spec.Name]; ok {
			profiles[i] = p
			continue
		}
		index[p.Spec.Name] = len(profiles)
		profiles = append(profiles, p)
	}
	return profiles
}

// Validate checks everything that would otherwise fail at engine start.
func (c *Config) Validate() error {
	for _, p := range c.ScoringProfiles() {
		if err := p.Spec.Validate(); err != nil {
			return fmt.Errorf("scoring profile %q: %w", p.Spec.Name, err)
		}
		for _, r := range p.Caps {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("scoring profile %q: %w", p.Spec.Name, err)
			}
		}
	}
	if err := c.Approval.Validate(); err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner.workers must be at least 1, got %d", c.Runner.Workers)
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Ingest: IngestConfig{
			TimeoutMs: 10000,
		},
		Runner: RunnerConfig{
			Workers:    8,
			IntervalMs: 0,
		},
		Approval: approval.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ASSAY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("ASSAY_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("ASSAY_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("ASSAY_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ASSAY_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("ASSAY_INGEST_URL"); v != "" {
		cfg.Ingest.URL = v
	}
	if v := os.Getenv("ASSAY_INGEST_TOKEN"); v != "" {
		cfg.Ingest.Token = v
	}
	if v := os.Getenv("ASSAY_INGEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.TimeoutMs = n
		}
	}
	if v := os.Getenv("ASSAY_RUNNER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.Workers = n
		}
	}
	if v := os.Getenv("ASSAY_RUNNER_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.IntervalMs = n
		}
	}
	if v := os.Getenv("ASSAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
