package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/registry"
	"mcpbroker/internal/infra/telemetry"
)

const defaultHeartbeatInterval = 30 * time.Second

type heartbeater interface {
	RunHeartbeat(ctx context.Context, interval time.Duration)
}

type reconnecter interface {
	Connect(ctx context.Context, specs []domain.ServerSpec) error
}

// Serve exposes metrics, health and the catalog API over HTTP until ctx is
// done. Live registries are pinged periodically and reconnected when the
// config file changes.
func (a *Application) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	if hb, ok := a.tools.(heartbeater); ok {
		group.Go(func() error {
			hb.RunHeartbeat(ctx, defaultHeartbeatInterval)
			return nil
		})
	}

	if rc, ok := a.tools.(reconnecter); ok && a.options.ConfigPath != "" && a.loader != nil {
		watcher := NewConfigWatcher(a.options.ConfigPath, a.loader, a.logger, func(ctx context.Context, cfg domain.Config) {
			a.reconnect(ctx, rc, cfg)
		})
		group.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				a.logger.Warn("config watch disabled", zap.Error(err))
			}
			return nil
		})
	}

	group.Go(func() error {
		return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
			Addr:     a.config.Observability.ListenAddress,
			Registry: a.registry,
			Health:   a.health,
			Handlers: a.apiHandlers(),
		}, a.logger)
	})

	return group.Wait()
}

func (a *Application) reconnect(ctx context.Context, rc reconnecter, cfg domain.Config) {
	before, err := a.catalog.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("catalog snapshot before reload failed", zap.Error(err))
	}
	if err := rc.Connect(ctx, cfg.EnabledServers()); err != nil {
		a.logger.Error("reconnect after config change failed", zap.Error(err))
		return
	}
	a.logger.Info("configuration reloaded",
		telemetry.EventField(telemetry.EventConfigReloaded),
		zap.Int("servers", len(cfg.EnabledServers())),
	)

	after, err := a.catalog.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("catalog snapshot after reload failed", zap.Error(err))
		return
	}
	diff := domain.DiffCatalogSnapshots(before, after)
	if diff.IsEmpty() {
		return
	}
	a.logger.Info("catalog changed",
		telemetry.EventField(telemetry.EventCatalogChanged),
		telemetry.ETagField(after.ETag),
		zap.Strings("added", diff.Added),
		zap.Strings("removed", diff.Removed),
		zap.Strings("updated", diff.Updated),
	)
}

// health is degraded only when every configured server is in error.
func (a *Application) health(ctx context.Context) telemetry.HealthReport {
	servers, err := a.Servers(ctx)
	if err != nil {
		return telemetry.HealthReport{Status: "unavailable"}
	}
	report := telemetry.HealthReport{Status: "ok", Servers: servers}
	if len(servers) == 0 {
		return report
	}
	for _, srv := range servers {
		if srv.Status != registry.StatusError {
			return report
		}
	}
	report.Status = "degraded"
	return report
}
