package domain

// ServerSpec describes one backend MCP server. Its Name is the namespace of
// every tool it exposes.
type ServerSpec struct {
	Name        string            `json:"name"`
	Cmd         []string          `json:"cmd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
	ExposeTools []string          `json:"exposeTools,omitempty"`
}

// IsHTTP reports whether the server is reached over streamable HTTP.
func (s ServerSpec) IsHTTP() bool {
	return s.Endpoint != ""
}

type ModelConfig struct {
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	APIKey       string   `json:"apiKey,omitempty"`
	APIKeyEnvVar string   `json:"apiKeyEnvVar"`
	BaseURL      string   `json:"baseURL,omitempty"`
	MaxTurns     int      `json:"maxTurns"`
}

type ObservabilityConfig struct {
	ListenAddress string `json:"listenAddress"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the full broker configuration.
type Config struct {
	Servers            []ServerSpec        `json:"servers"`
	Model              ModelConfig         `json:"model"`
	FetchConcurrency   int                 `json:"fetchConcurrency"`
	CallTimeoutSeconds int                 `json:"callTimeoutSeconds"`
	SnapshotPath       string              `json:"snapshotPath"`
	Observability      ObservabilityConfig `json:"observability"`
	Logging            LoggingConfig       `json:"logging"`
}

// EnabledServers returns servers that are not disabled, in config order.
func (c Config) EnabledServers() []ServerSpec {
	out := make([]ServerSpec, 0, len(c.Servers))
	for _, spec := range c.Servers {
		if spec.Disabled {
			continue
		}
		out = append(out, spec)
	}
	return out
}
