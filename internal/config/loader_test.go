package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"auth": {
					"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
				},
				"max_tokens": 4096
			}
		}
	},
	"worker": {
		"id": "triad-w1",
		"poll_interval": "5s"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Models.Default != "claude" {
		t.Errorf("expected default claude, got %s", cfg.Models.Default)
	}

	p, ok := cfg.Models.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", p.MaxTokens)
	}

	if cfg.Worker.ID != "triad-w1" {
		t.Errorf("expected worker id triad-w1, got %s", cfg.Worker.ID)
	}
	if cfg.Worker.PollInterval.Duration() != 5*time.Second {
		t.Errorf("expected poll_interval 5s, got %s", cfg.Worker.PollInterval.Duration())
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 3333 {
		t.Errorf("expected default port 3333, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Converge.FanIn != 3 {
		t.Errorf("expected default fan_in 3, got %d", cfg.Converge.FanIn)
	}
	if cfg.Converge.DefaultStrategy != "comprehensive" {
		t.Errorf("expected default strategy comprehensive, got %s", cfg.Converge.DefaultStrategy)
	}
	if cfg.Worker.PollInterval.Duration() != 10*time.Second {
		t.Errorf("expected default poll_interval 10s, got %s", cfg.Worker.PollInterval.Duration())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.jsonc"))
	if err != nil {
		t.Fatalf("missing config should yield defaults, got error: %v", err)
	}
	if cfg.Gateway.Port != 3333 {
		t.Errorf("expected default port 3333, got %d", cfg.Gateway.Port)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
