package app

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/config"
	"mcpbroker/internal/infra/llmschema"
	"mcpbroker/internal/infra/registry"
	"mcpbroker/internal/infra/store"
	"mcpbroker/internal/infra/telemetry"
	"mcpbroker/internal/infra/toolcatalog"
)

const defaultPingTimeout = 3 * time.Second

func NewConfigLoader() *config.Loader {
	return config.NewLoader(nil)
}

func LoadConfig(ctx context.Context, opts Options, loader *config.Loader) (domain.Config, error) {
	cfg, err := loader.Load(ctx, opts.ConfigPath)
	if err != nil {
		return domain.Config{}, err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func NewLogger(cfg domain.Config) (*zap.Logger, error) {
	return telemetry.NewLogger(cfg.Logging)
}

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

// NewRegistry connects to the enabled servers, or in offline mode serves the
// latest stored snapshot. The cleanup closes live sessions.
func NewRegistry(ctx context.Context, opts Options, cfg domain.Config, logger *zap.Logger, metrics domain.Metrics) (Registry, func(), error) {
	if opts.Offline {
		snapshot, err := latestSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("serving stored catalog snapshot",
			telemetry.ETagField(snapshot.ETag),
			zap.Int("tools", len(snapshot.Tools)),
			zap.Time("built_at", snapshot.BuiltAt),
		)
		return registry.NewSnapshotRegistry(snapshot), func() {}, nil
	}

	mcpRegistry := registry.NewMCPRegistry(registry.MCPOptions{
		Logger:      logger,
		Metrics:     metrics,
		CallTimeout: time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		PingTimeout: defaultPingTimeout,
	})
	if err := mcpRegistry.Connect(ctx, cfg.EnabledServers()); err != nil {
		_ = mcpRegistry.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := mcpRegistry.Close(); err != nil {
			logger.Warn("registry close failed", zap.Error(err))
		}
	}
	return mcpRegistry, cleanup, nil
}

func latestSnapshot(path string) (domain.CatalogSnapshot, error) {
	snapshots, err := store.Open(path, store.Options{})
	if err != nil {
		return domain.CatalogSnapshot{}, domain.Wrap(domain.CodeUnavailable, "app.offline", err)
	}
	defer snapshots.Close()

	snapshot, ok, err := snapshots.Latest()
	if err != nil {
		return domain.CatalogSnapshot{}, domain.Wrap(domain.CodeInternal, "app.offline", err)
	}
	if !ok {
		return domain.CatalogSnapshot{}, domain.E(domain.CodeFailedPrecond, "app.offline", "no stored snapshot; run `tools sync` first", nil)
	}
	return snapshot, nil
}

func NewCatalog(tools Registry, cfg domain.Config, logger *zap.Logger, metrics domain.Metrics) *toolcatalog.Catalog {
	return toolcatalog.New(tools, toolcatalog.Options{
		Logger:           logger,
		Metrics:          metrics,
		FetchConcurrency: cfg.FetchConcurrency,
	})
}

func NewAdapter(catalog *toolcatalog.Catalog, logger *zap.Logger, metrics domain.Metrics) *llmschema.Adapter {
	return llmschema.New(catalog, llmschema.Options{Logger: logger, Metrics: metrics})
}
