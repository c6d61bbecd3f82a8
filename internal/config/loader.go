package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }}
// templates, unmarshals it into Config, and applies defaults. A missing file
// yields a default config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping comments,
	// since templates live inside strings.
	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 3333
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Worker.ID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "local"
		}
		cfg.Worker.ID = "triad-" + host
	}
	if cfg.Worker.Role == "" {
		cfg.Worker.Role = "worker"
	}
	if cfg.Worker.PollInterval.Duration() == 0 {
		cfg.Worker.PollInterval = Duration(10 * time.Second)
	}
	if cfg.Converge.FanIn == 0 {
		cfg.Converge.FanIn = 3
	}
	if cfg.Converge.DefaultStrategy == "" {
		cfg.Converge.DefaultStrategy = "comprehensive"
	}
	if cfg.Orchestrator.TaskMultiplier == 0 {
		cfg.Orchestrator.TaskMultiplier = 1
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = "anthropic"
	}
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]ProviderConfig{
			"anthropic": {
				Driver: "anthropic",
				Auth:   AuthConfig{EnvVar: "ANTHROPIC_API_KEY"},
			},
		}
	}
}
