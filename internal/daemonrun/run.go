package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"lumen/internal/config"
	"lumen/internal/daemon"
	"lumen/internal/display"
	"lumen/internal/ipc"
	"lumen/internal/logging"
	"lumen/internal/metrics"
	"lumen/internal/mqtt"
	"lumen/internal/store"
	"lumen/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the file watched for engine setting changes. Empty
	// disables live reload.
	ConfigPath string
	// SocketPath overrides the configured IPC socket.
	SocketPath string
	// LogLevel overrides the configured log level.
	LogLevel string
}

// Run starts the lumen daemon and blocks until a signal or an IPC stop
// request ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	runID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.Open(cfg)
	if err != nil {
		logger.Error("open customization store", logging.Error(err))
		return err
	}

	collector := metrics.New(nil)
	enumerator := display.FromConfig(cfg, logger)
	daemonOpts := []daemon.Option{
		daemon.WithObserver(collector),
		daemon.WithWatchers(buildWatchers(cfg, logger)...),
	}
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		daemonOpts = append(daemonOpts, daemon.WithConfigPath(path))
	}

	d, err := daemon.New(cfg, enumerator, db, logger, daemonOpts...)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	if err := collector.WatchFleet(d); err != nil {
		return fmt.Errorf("register fleet metrics: %w", err)
	}

	logger.Info("lumen daemon starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.Int("pid", os.Getpid()),
		logging.String("backends", strings.Join(enumerator.Backends(), ",")),
		logging.String("database", db.Path()),
	)

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Written only once the lock is held so a losing instance never
	// touches the running daemon's pid file.
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logging.WarnWithContext(logger, "mqtt publisher disabled", "mqtt_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check mqtt.broker and credentials"),
				logging.String(logging.FieldImpact, "monitor state is not mirrored to the broker"),
			)
		} else {
			publisher.Attach(d.Registry())
			defer publisher.Close()
		}
	}

	if bind := strings.TrimSpace(cfg.Metrics.Bind); bind != "" {
		srv, err := metrics.Serve(bind, collector, logger)
		if err != nil {
			logging.WarnWithContext(logger, "metrics endpoint disabled", "metrics_listen_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind for a free address"),
				logging.String(logging.FieldImpact, "metrics are not exported"),
			)
		} else {
			defer shutdownMetrics(srv, logger)
		}
	}

	socketPath := cfg.SocketPath()
	if override := strings.TrimSpace(opts.SocketPath); override != "" {
		socketPath = override
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("lumen daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func buildWatchers(cfg *config.Config, logger *slog.Logger) []watch.Watcher {
	var watchers []watch.Watcher
	if cfg.Watchers.Udev {
		watchers = append(watchers, watch.NewUdev(logger))
	}
	if cfg.Watchers.Logind {
		watchers = append(watchers, watch.NewLogind(logger))
	}
	return watchers
}

func shutdownMetrics(srv *metrics.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Debug("metrics shutdown", logging.Error(err))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
