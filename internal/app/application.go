// Package app wires configuration, registries and the core components into
// the use cases the CLI exposes.
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/config"
	"mcpbroker/internal/infra/llmschema"
	"mcpbroker/internal/infra/toolcatalog"
)

// Options are the per-invocation settings taken from the command line.
type Options struct {
	ConfigPath string
	// Offline builds the catalog from the latest stored snapshot instead of
	// connecting to servers.
	Offline  bool
	LogLevel string
}

// Registry is what the application needs from a backend: enumeration,
// metadata, execution and a per-namespace summary.
type Registry interface {
	domain.ToolRegistry
	domain.ToolCaller
	Servers() []domain.NamespaceInfo
}

// Application holds the wired components for one process.
type Application struct {
	options  Options
	config   domain.Config
	loader   *config.Loader
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  domain.Metrics
	tools    Registry
	catalog  *toolcatalog.Catalog
	adapter  *llmschema.Adapter
}

// ApplicationOptions captures dependencies for Application.
type ApplicationOptions struct {
	Options         Options
	Config          domain.Config
	Loader          *config.Loader
	Logger          *zap.Logger
	MetricsRegistry *prometheus.Registry
	Metrics         domain.Metrics
	Registry        Registry
	Catalog         *toolcatalog.Catalog
	Adapter         *llmschema.Adapter
}

func NewApplication(opts ApplicationOptions) *Application {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &Application{
		options:  opts.Options,
		config:   opts.Config,
		loader:   opts.Loader,
		logger:   logger.Named("app"),
		registry: opts.MetricsRegistry,
		metrics:  metrics,
		tools:    opts.Registry,
		catalog:  opts.Catalog,
		adapter:  opts.Adapter,
	}
}

func (a *Application) Config() domain.Config {
	return a.config
}

func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// ValidateConfig loads and validates a config file without connecting to
// any server.
func ValidateConfig(ctx context.Context, path string, logger *zap.Logger) (domain.Config, error) {
	cfg, err := config.NewLoader(logger).Load(ctx, path)
	if err != nil {
		return domain.Config{}, err
	}
	if logger != nil {
		logger.Info("configuration validated",
			zap.String("config", path),
			zap.Int("servers", len(cfg.Servers)),
			zap.Int("enabled", len(cfg.EnabledServers())),
		)
	}
	return cfg, nil
}
