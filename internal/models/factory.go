package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/triad-sh/triad/internal/config"
)

// Factory builds Completers billed to a specific credential. The account
// router picks the credential; the factory picks the driver.
type Factory struct {
	cfg config.ModelsConfig
}

// NewFactory creates a Factory from the models configuration.
func NewFactory(cfg config.ModelsConfig) *Factory {
	return &Factory{cfg: cfg}
}

// ForCredential returns a Completer that bills against the given credential.
// An empty credential falls back to the provider's configured auth.
func (f *Factory) ForCredential(credential string) (Completer, error) {
	name := f.cfg.Default
	if name == "" {
		name = "anthropic"
	}
	provider, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	switch strings.ToLower(provider.Driver) {
	case "anthropic", "":
		if credential == "" {
			resolved, err := resolveCredential(provider)
			if err != nil {
				return nil, err
			}
			credential = resolved
		}
		m, err := NewAnthropic(provider, credential)
		if err != nil {
			return nil, err
		}
		return NewCompleter(m), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown driver: %s", provider.Driver)
	}
}

// resolveCredential resolves a provider's API key from its auth config:
// direct key first, then the configured env var, then ANTHROPIC_API_KEY.
func resolveCredential(cfg config.ProviderConfig) (string, error) {
	if key := strings.TrimSpace(cfg.Auth.APIKey); key != "" {
		return key, nil
	}
	if cfg.Auth.EnvVar != "" {
		if key := os.Getenv(cfg.Auth.EnvVar); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("%s not set", cfg.Auth.EnvVar)
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
}
