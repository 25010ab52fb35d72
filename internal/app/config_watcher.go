package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/config"
)

const defaultReloadDebounce = 200 * time.Millisecond

// ConfigWatcher reloads the config file when it changes on disk and hands
// each valid result to onChange. Invalid edits are logged and skipped.
type ConfigWatcher struct {
	logger     *zap.Logger
	loader     *config.Loader
	configPath string
	debounce   time.Duration
	onChange   func(ctx context.Context, cfg domain.Config)
}

func NewConfigWatcher(configPath string, loader *config.Loader, logger *zap.Logger, onChange func(ctx context.Context, cfg domain.Config)) *ConfigWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigWatcher{
		logger:     logger.Named("config_watcher"),
		loader:     loader,
		configPath: configPath,
		debounce:   defaultReloadDebounce,
		onChange:   onChange,
	}
}

// Run watches until ctx is done. The parent directory is watched so that
// editors replacing the file by rename are still seen.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "config_watcher.start", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return domain.Wrap(domain.CodeInternal, "config_watcher.add", err)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !sameFile(event.Name, w.configPath) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			w.reload(ctx)
		}
	}
}

func (w *ConfigWatcher) reload(ctx context.Context) {
	cfg, err := w.loader.Load(ctx, w.configPath)
	if err != nil {
		w.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	w.onChange(ctx, cfg)
}

func sameFile(path, configPath string) bool {
	if path == "" || configPath == "" {
		return false
	}
	return filepath.Clean(path) == filepath.Clean(configPath)
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
