package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"lumen/internal/config"
	"lumen/internal/logging"
)

const reloadSettle = 250 * time.Millisecond

// watchConfig follows the config file's directory; editors replace files by
// rename, which a watch on the file itself would lose.
func (d *Daemon) watchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	dir := filepath.Dir(d.configPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config directory %q: %w", dir, err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer watcher.Close()
		d.configLoop(ctx, watcher.Events, watcher.Errors)
	}()
	return nil
}

func (d *Daemon) configLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	name := filepath.Clean(d.configPath)
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != name {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			settle = time.After(reloadSettle)
		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.Debug("config watcher error", logging.Error(err))
		case <-settle:
			settle = nil
			d.reloadConfig(ctx)
		}
	}
}

// reloadConfig re-reads the config file and applies the engine settings that
// can change at runtime. Everything else needs a restart.
func (d *Daemon) reloadConfig(ctx context.Context) {
	cfg, _, exists, err := config.Load(d.configPath)
	if err != nil {
		logging.WarnWithContext(d.logger, "config reload failed; keeping current settings", "config_reload_failed",
			logging.String("path", d.configPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; it is re-read on the next save"),
			logging.String(logging.FieldImpact, "engine settings unchanged"),
		)
		return
	}
	if !exists {
		return
	}
	d.applyEngine(ctx, cfg.Engine, cfg.CustomizationCapacity())
}

func (d *Daemon) applyEngine(ctx context.Context, engine config.Engine, capacity int) {
	previous := d.scanner.MaxTargets()
	d.scanner.SetMaxTargets(engine.MaxTargets)
	d.customizations.Resize(capacity)
	d.registry.RefreshCustomizations()
	d.logger.Info("engine settings reloaded",
		logging.Int("max_targets", d.scanner.MaxTargets()),
		logging.Int("previous_max_targets", previous),
		logging.Int("customization_capacity", capacity),
		logging.String(logging.FieldEventType, "config_reloaded"),
	)
	if d.scanner.MaxTargets() != previous {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.scanner.Scan(ctx, 0)
		}()
	}
}
