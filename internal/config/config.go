package config

import "time"

// Config is the root configuration for Triad.
type Config struct {
	Gateway      GatewayConfig      `json:"gateway"`
	Models       ModelsConfig       `json:"models"`
	Events       EventsConfig       `json:"events"`
	Worker       WorkerConfig       `json:"worker"`
	Converge     ConvergeConfig     `json:"converge"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
}

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds completion delegate configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single completion provider.
type ProviderConfig struct {
	Driver    string     `json:"driver"` // "anthropic", "mock"
	Model     string     `json:"model"`
	BaseURL   string     `json:"base_url,omitempty"`
	Auth      AuthConfig `json:"auth"`
	MaxTokens int        `json:"max_tokens,omitempty"`
	Timeout   Duration   `json:"timeout,omitempty"`
}

// AuthConfig configures API key resolution for a provider.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct key or ${{ .Env.VAR }} template
	EnvVar string `json:"env_var,omitempty"` // Environment variable holding the key
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// WorkerConfig holds settings for the worker polling loop.
type WorkerConfig struct {
	ID             string   `json:"id,omitempty"`   // default: triad-<hostname>
	Role           string   `json:"role,omitempty"` // coordinator | synthesizer | worker
	PollInterval   Duration `json:"poll_interval,omitempty"`
	MaxTasks       int      `json:"max_tasks,omitempty"`        // 0 = unbounded
	ReassignOnExit bool     `json:"reassign_on_exit,omitempty"` // force-release claims on shutdown
}

// ConvergeConfig holds convergence engine settings.
type ConvergeConfig struct {
	FanIn           int    `json:"fan_in,omitempty"`           // outputs per cluster convergence
	DefaultStrategy string `json:"default_strategy,omitempty"` // comprehensive | executive | technical | narrative
}

// OrchestratorConfig holds orchestration run settings.
type OrchestratorConfig struct {
	TotalBudget    float64 `json:"total_budget,omitempty"`
	ManifestPath   string  `json:"manifest_path,omitempty"`
	TaskMultiplier int     `json:"task_multiplier,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
