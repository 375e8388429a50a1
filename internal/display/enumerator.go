package display

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"lumen/internal/config"
	"lumen/internal/display/backlight"
	"lumen/internal/display/ddc"
	"lumen/internal/fleet"
	"lumen/internal/logging"
)

// Backend is one source of monitors.
type Backend interface {
	Name() string
	Owns(id string) bool
	Enumerate(ctx context.Context) ([]fleet.Snapshot, error)
	Open(fleet.Snapshot) fleet.Handle
	// Fingerprint summarises the attached hardware cheaply enough to be
	// computed on every periodic check.
	Fingerprint(ctx context.Context) string
}

// Enumerator merges backends into a single fleet.Enumerator.
type Enumerator struct {
	backends []Backend
	logger   *slog.Logger

	mu          sync.Mutex
	fingerprint string
	enumerated  bool
}

// NewEnumerator builds an enumerator over the given backends, queried in order.
func NewEnumerator(logger *slog.Logger, backends ...Backend) *Enumerator {
	return &Enumerator{
		backends: backends,
		logger:   logging.NewComponentLogger(logger, "enumerator"),
	}
}

// FromConfig builds the backends enabled in cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Enumerator {
	var backends []Backend
	if cfg.Backends.DDCUtil {
		client := ddc.NewClient(cfg.Backends.DDCUtilBinary, cfg.CommandTimeout())
		backends = append(backends, ddc.NewBackend(client, "", logger))
	}
	if cfg.Backends.Backlight {
		backends = append(backends, backlight.NewBackend(cfg.Backends.BacklightDir, logger))
	}
	return NewEnumerator(logger, backends...)
}

// Backends returns the configured backend names.
func (e *Enumerator) Backends() []string {
	names := make([]string, 0, len(e.backends))
	for _, b := range e.backends {
		names = append(names, b.Name())
	}
	return names
}

// Enumerate queries every backend concurrently and concatenates the results in
// backend order. A failing backend contributes nothing.
func (e *Enumerator) Enumerate(ctx context.Context) []fleet.Snapshot {
	results := make([][]fleet.Snapshot, len(e.backends))
	var g errgroup.Group
	for i, backend := range e.backends {
		g.Go(func() error {
			snaps, err := backend.Enumerate(ctx)
			if err != nil {
				logging.WarnWithContext(logging.WithContext(ctx, e.logger), "backend enumeration failed", "enumeration_failed",
					logging.String("backend", backend.Name()),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that the backend tool is installed and the user may access the devices"),
					logging.String(logging.FieldImpact, "monitors from this backend are treated as detached"),
				)
				return nil
			}
			results[i] = snaps
			return nil
		})
	}
	_ = g.Wait()

	var out []fleet.Snapshot
	for _, snaps := range results {
		out = append(out, snaps...)
	}

	fp := e.currentFingerprint(ctx)
	e.mu.Lock()
	e.fingerprint = fp
	e.enumerated = true
	e.mu.Unlock()
	return out
}

// Open routes the snapshot to the backend that issued its id.
func (e *Enumerator) Open(snap fleet.Snapshot) fleet.Handle {
	for _, backend := range e.backends {
		if backend.Owns(snap.ID) {
			return backend.Open(snap)
		}
	}
	e.logger.Debug("no backend owns snapshot", logging.Device(snap.ID))
	return nullHandle{}
}

// TopologyChanged compares the hardware fingerprint with the one recorded at
// the last enumeration.
func (e *Enumerator) TopologyChanged(ctx context.Context) bool {
	fp := e.currentFingerprint(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.enumerated || fp != e.fingerprint
}

func (e *Enumerator) currentFingerprint(ctx context.Context) string {
	parts := make([]string, 0, len(e.backends))
	for _, backend := range e.backends {
		parts = append(parts, backend.Name()+"="+backend.Fingerprint(ctx))
	}
	return strings.Join(parts, ";")
}

// nullHandle stands in for a snapshot no backend recognises; every call fails.
type nullHandle struct{}

func (nullHandle) TryGetBrightness(context.Context) (int, bool) { return 0, false }
func (nullHandle) TrySetBrightness(context.Context, int) bool   { return false }
func (nullHandle) TryGetContrast(context.Context) (int, bool)   { return 0, false }
func (nullHandle) TrySetContrast(context.Context, int) bool     { return false }
func (nullHandle) Rebind(fleet.Snapshot)                        {}
func (nullHandle) Close() error                                 { return nil }
