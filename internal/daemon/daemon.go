package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lumen/internal/config"
	"lumen/internal/customization"
	"lumen/internal/fleet"
	"lumen/internal/logging"
	"lumen/internal/preflight"
	"lumen/internal/unison"
	"lumen/internal/watch"
)

var (
	// ErrNotRunning is returned by operations that need a started daemon.
	ErrNotRunning = errors.New("daemon not running")
	// ErrUnknownMonitor is returned when no tracked monitor has the given id.
	ErrUnknownMonitor = errors.New("unknown monitor")
	// ErrNotControllable is returned for monitors that are not currently controllable.
	ErrNotControllable = errors.New("monitor not controllable")
	// ErrWriteFailed is returned when the monitor rejected a write.
	ErrWriteFailed = errors.New("monitor rejected the write")
)

// Observer receives scan coordinator and watcher outcomes, typically the
// metrics collector.
type Observer interface {
	fleet.Observer
	watch.Recorder
}

// Option customizes a daemon.
type Option func(*Daemon)

// WithWatchers sets the OS change watchers started with the daemon.
func WithWatchers(watchers ...watch.Watcher) Option {
	return func(d *Daemon) { d.watchers = watchers }
}

// WithObserver reports scan and watcher outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Daemon) { d.observer = o }
}

// WithConfigPath enables reloading engine settings when the file changes.
func WithConfigPath(path string) Option {
	return func(d *Daemon) { d.configPath = path }
}

// Daemon owns the monitor fleet for the lifetime of the process and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	persister      customization.Persister
	customizations *customization.Store
	broadcaster    *unison.Broadcaster
	registry       *fleet.Registry
	scanner        *fleet.Scanner
	policy         *watch.Policy
	watchers       []watch.Watcher
	observer       Observer
	configPath     string

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	ready     atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	Ready          bool
	PID            int
	StartedAt      time.Time
	Scanning       bool
	MaxTargets     int
	Monitors       []fleet.View
	LastScan       *fleet.Stats
	ScansCompleted uint64
	ScansDropped   uint64
	Customizations int
	Watchers       []WatcherStatus
	LockFilePath   string
	SessionLocked  bool
}

// WatcherStatus reports whether one watcher is connected.
type WatcherStatus struct {
	Name    string
	Running bool
}

// New constructs a daemon over the given enumerator. persister backs the
// customization store and may be nil.
func New(cfg *config.Config, enumerator fleet.Enumerator, persister customization.Persister, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || enumerator == nil {
		return nil, errors.New("daemon requires config and enumerator")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		persister: persister,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.customizations = customization.NewStore(cfg.CustomizationCapacity(), persister, logger)
	d.broadcaster = unison.New()
	d.registry = fleet.NewRegistry(d.customizations, d.broadcaster, logger)

	scannerOpts := []fleet.ScannerOption{fleet.WithMaxTargets(cfg.Engine.MaxTargets)}
	var recorder watch.Recorder
	if d.observer != nil {
		scannerOpts = append(scannerOpts, fleet.WithObserver(d.observer))
		recorder = d.observer
	}
	d.scanner = fleet.NewScanner(d.registry, enumerator, logger, scannerOpts...)
	d.policy = watch.NewPolicy(d.scanner, cfg.ScanDebounce(), logger, recorder)
	return d, nil
}

// Registry exposes the tracked fleet for publishers and metrics.
func (d *Daemon) Registry() *fleet.Registry {
	return d.registry
}

// Views returns the current monitor views.
func (d *Daemon) Views() []fleet.View {
	return d.registry.Views()
}

// Start acquires the daemon lock, restores customizations, connects the
// watchers, and kicks off the initial scan and the periodic check.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lumen daemon instance is already running")
	}

	loaded, err := d.customizations.Load(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to restore customizations", "customizations_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database"),
			logging.String(logging.FieldImpact, "monitors start with the default 0-100 range"),
		)
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run lumen status for the full report"),
			logging.String(logging.FieldImpact, "some monitors may be missing or uncontrollable"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	handler := d.policy.Handler(runCtx)
	for _, w := range d.watchers {
		if err := w.Start(runCtx, handler); err != nil {
			logging.WarnWithContext(d.logger, "watcher failed to start", "watcher_start_failed",
				logging.String("watcher", w.Name()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes from this source are only seen by the periodic check"),
			)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scanner.Scan(runCtx, 0)
		d.scanner.RefreshOnly(runCtx)
		d.ready.Store(true)
	}()

	if interval := d.cfg.PollInterval(); interval > 0 {
		d.wg.Add(1)
		go d.pollLoop(runCtx, interval)
	}

	if d.configPath != "" {
		if err := d.watchConfig(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "config reload disabled", "config_watch_failed",
				logging.String("path", d.configPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "engine settings apply only after restart"),
			)
		}
	}

	d.logger.Info("lumen daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("customizations", loaded),
		logging.Int("max_targets", d.scanner.MaxTargets()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) pollLoop(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanner.Check(ctx)
		}
	}
}

// Stop disconnects the watchers, waits for in-flight passes, disposes the
// tracked monitors, and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	for _, w := range d.watchers {
		w.Stop()
	}
	d.wg.Wait()
	d.policy.Wait()
	d.registry.Close()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.ready.Store(false)
	d.logger.Info("lumen daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the persister if it holds resources.
func (d *Daemon) Close() error {
	d.Stop()
	if closer, ok := d.persister.(io.Closer); ok && closer != nil {
		return closer.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	completed, dropped := d.scanner.Counts()
	status := Status{
		Running:        d.running.Load(),
		Ready:          d.ready.Load(),
		PID:            os.Getpid(),
		Scanning:       d.scanner.Scanning(),
		MaxTargets:     d.scanner.MaxTargets(),
		Monitors:       d.registry.Views(),
		ScansCompleted: completed,
		ScansDropped:   dropped,
		Customizations: d.customizations.Len(),
		LockFilePath:   d.lockPath,
		SessionLocked:  d.policy.Locked(),
	}
	d.mu.Lock()
	status.StartedAt = d.startedAt
	d.mu.Unlock()
	if stats, ok := d.scanner.LastScan(); ok {
		status.LastScan = &stats
	}
	for _, w := range d.watchers {
		status.Watchers = append(status.Watchers, WatcherStatus{Name: w.Name(), Running: w.Running()})
	}
	return status
}
