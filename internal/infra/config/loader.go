// Package config loads broker configuration files.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcpbroker/internal/domain"
)

// EnvPrefix prefixes environment variables that override top-level keys,
// e.g. MCPBROKER_MODEL or MCPBROKER_LOGGING_LEVEL.
const EnvPrefix = "MCPBROKER"

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", string(domain.DefaultProvider))
	v.SetDefault("model", domain.DefaultModel)
	v.SetDefault("apiKey", "")
	v.SetDefault("apiKeyEnvVar", domain.DefaultAPIKeyEnvVar)
	v.SetDefault("baseURL", "")
	v.SetDefault("maxTurns", domain.DefaultMaxTurns)
	v.SetDefault("fetchConcurrency", domain.DefaultFetchConcurrency)
	v.SetDefault("callTimeoutSeconds", domain.DefaultCallTimeoutSeconds)
	v.SetDefault("snapshotPath", "")
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("logging.level", domain.DefaultLogLevel)
	v.SetDefault("logging.format", domain.DefaultLogFormat)
}

type rawConfig struct {
	Provider           string                 `mapstructure:"provider"`
	Model              string                 `mapstructure:"model"`
	APIKey             string                 `mapstructure:"apiKey"`
	APIKeyEnvVar       string                 `mapstructure:"apiKeyEnvVar"`
	BaseURL            string                 `mapstructure:"baseURL"`
	MaxTurns           int                    `mapstructure:"maxTurns"`
	FetchConcurrency   int                    `mapstructure:"fetchConcurrency"`
	CallTimeoutSeconds int                    `mapstructure:"callTimeoutSeconds"`
	SnapshotPath       string                 `mapstructure:"snapshotPath"`
	Observability      rawObservabilityConfig `mapstructure:"observability"`
	Logging            rawLoggingConfig       `mapstructure:"logging"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawLoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// rawServerSpec is decoded with yaml.v3 rather than viper so that env and
// header keys keep their case.
type rawServerSpec struct {
	Name        string            `yaml:"name"`
	Cmd         []string          `yaml:"cmd,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Cwd         string            `yaml:"cwd,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Disabled    bool              `yaml:"disabled,omitempty"`
	ExposeTools []string          `yaml:"exposeTools,omitempty"`
}

// Load reads, expands, normalizes and validates a config file. YAML, JSON
// and TOML are accepted; an "mcpServers" table is read as servers.
func (l *Loader) Load(ctx context.Context, path string) (domain.Config, error) {
	if path == "" {
		return domain.Config{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}
	return l.Parse(ctx, FormatFor(path), data)
}

// Parse is Load for in-memory content.
func (l *Loader) Parse(ctx context.Context, format Format, data []byte) (domain.Config, error) {
	doc, err := toYAMLDocument(format, data)
	if err != nil {
		return domain.Config{}, err
	}

	root, missing, err := expandConfigEnv(doc)
	if err != nil {
		return domain.Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config", zap.Strings("missing", missing))
	}
	if err := liftMCPServers(root, format == FormatTOML); err != nil {
		return domain.Config{}, err
	}

	servers, err := decodeServers(root)
	if err != nil {
		return domain.Config{}, err
	}

	var expanded []byte
	if root.Kind != 0 {
		expanded, err = yaml.Marshal(root)
		if err != nil {
			return domain.Config{}, fmt.Errorf("encode expanded config: %w", err)
		}
	}
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	cfg := normalizeConfig(raw, servers)
	if errs := validateConfig(cfg); len(errs) > 0 {
		return domain.Config{}, domain.E(domain.CodeInvalidArgument, "config.load", strings.Join(errs, "; "), domain.ErrInvalidConfig)
	}
	return cfg, nil
}

func decodeServers(root *yaml.Node) ([]rawServerSpec, error) {
	doc := documentMapping(root)
	if doc == nil {
		return nil, nil
	}
	idx := mappingIndex(doc, "servers")
	if idx < 0 {
		return nil, nil
	}
	var servers []rawServerSpec
	if err := doc.Content[idx+1].Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return servers, nil
}

func normalizeConfig(raw rawConfig, servers []rawServerSpec) domain.Config {
	specs := make([]domain.ServerSpec, 0, len(servers))
	for _, server := range servers {
		specs = append(specs, normalizeServerSpec(server))
	}
	return domain.Config{
		Servers: specs,
		Model: domain.ModelConfig{
			Provider:     domain.Provider(strings.ToLower(strings.TrimSpace(raw.Provider))),
			Model:        strings.TrimSpace(raw.Model),
			APIKey:       raw.APIKey,
			APIKeyEnvVar: strings.TrimSpace(raw.APIKeyEnvVar),
			BaseURL:      strings.TrimSpace(raw.BaseURL),
			MaxTurns:     raw.MaxTurns,
		},
		FetchConcurrency:   raw.FetchConcurrency,
		CallTimeoutSeconds: raw.CallTimeoutSeconds,
		SnapshotPath:       resolveSnapshotPath(raw.SnapshotPath),
		Observability: domain.ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
		},
		Logging: domain.LoggingConfig{
			Level:  strings.ToLower(strings.TrimSpace(raw.Logging.Level)),
			Format: strings.ToLower(strings.TrimSpace(raw.Logging.Format)),
		},
	}
}

func normalizeServerSpec(raw rawServerSpec) domain.ServerSpec {
	return domain.ServerSpec{
		Name:        strings.TrimSpace(raw.Name),
		Cmd:         raw.Cmd,
		Env:         raw.Env,
		Cwd:         strings.TrimSpace(raw.Cwd),
		Endpoint:    strings.TrimSpace(raw.Endpoint),
		Headers:     raw.Headers,
		Disabled:    raw.Disabled,
		ExposeTools: raw.ExposeTools,
	}
}

func resolveSnapshotPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultSnapshotPath()
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// DefaultSnapshotPath is where catalog snapshots live when unconfigured.
func DefaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return domain.DefaultSnapshotFile
	}
	return filepath.Join(home, ".mcpbroker", domain.DefaultSnapshotFile)
}
