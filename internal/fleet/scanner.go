package fleet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lumen/internal/logging"
)

// DefaultMaxTargets is the default number of monitors refreshed and controlled.
const DefaultMaxTargets = 4

// Stats describes one completed reconciliation pass.
type Stats struct {
	PassID       string
	Started      time.Time
	Duration     time.Duration
	Enumerated   int
	Added        int
	Removed      int
	Retained     int
	Refreshed    int
	Failed       int
	Targets      int
	Controllable int
	Fallback     bool
}

// Observer receives coordinator outcomes. Implementations must not block.
type Observer interface {
	ScanCompleted(Stats)
	ScanDropped()
	RefreshCompleted(refreshed, failed int)
	RefreshDropped()
}

type nopObserver struct{}

func (nopObserver) ScanCompleted(Stats) {}

func (nopObserver) ScanDropped() {}

func (nopObserver) RefreshCompleted(int, int) {}

func (nopObserver) RefreshDropped() {}

// Scanner is the single-flight reconciliation coordinator.
//
// Scan and RefreshOnly each guard themselves with an idle to running
// compare-and-swap. A caller that loses the race gets false back; the request
// is dropped, never queued.
type Scanner struct {
	registry   *Registry
	enumerator Enumerator
	logger     *slog.Logger
	observer   Observer

	maxTargets atomic.Int32
	scanning   atomic.Bool
	refreshing atomic.Bool

	statsMu sync.Mutex
	last    Stats
	hasLast bool
	scans   atomic.Uint64
	dropped atomic.Uint64
	now     func() time.Time
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithObserver routes pass outcomes to o.
func WithObserver(o Observer) ScannerOption {
	return func(s *Scanner) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMaxTargets sets the initial control cap.
func WithMaxTargets(n int) ScannerOption {
	return func(s *Scanner) { s.SetMaxTargets(n) }
}

// NewScanner builds a coordinator over registry and enumerator.
func NewScanner(registry *Registry, enumerator Enumerator, logger *slog.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		registry:   registry,
		enumerator: enumerator,
		logger:     logging.NewComponentLogger(logger, "scanner"),
		observer:   nopObserver{},
		now:        time.Now,
	}
	s.maxTargets.Store(DefaultMaxTargets)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the scanner reconciles.
func (s *Scanner) Registry() *Registry { return s.registry }

// SetMaxTargets changes the control cap used by the next pass. Values below
// one are raised to one.
func (s *Scanner) SetMaxTargets(n int) {
	if n < 1 {
		n = 1
	}
	s.maxTargets.Store(int32(n))
}

// MaxTargets returns the control cap.
func (s *Scanner) MaxTargets() int {
	return int(s.maxTargets.Load())
}

// Scanning reports whether a full pass is in flight.
func (s *Scanner) Scanning() bool {
	return s.scanning.Load()
}

// LastScan returns the stats of the most recent completed pass.
func (s *Scanner) LastScan() (Stats, bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.last, s.hasLast
}

// Counts returns the number of completed and dropped scan requests.
func (s *Scanner) Counts() (completed, dropped uint64) {
	return s.scans.Load(), s.dropped.Load()
}

// Scan runs one reconciliation pass unless one is already in flight, in which
// case it returns false immediately. A positive interval starts a coalescing
// delay before enumeration that is awaited before the guard is released, so
// signals arriving in quick succession collapse into this pass.
func (s *Scanner) Scan(ctx context.Context, interval time.Duration) bool {
	if !s.scanning.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		s.observer.ScanDropped()
		s.logger.Debug("scan dropped; pass already in flight")
		return false
	}
	defer s.scanning.Store(false)

	s.registry.setScanning(true)
	defer s.registry.setScanning(false)

	var delay <-chan time.Time
	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		delay = timer.C
	}

	stats := Stats{PassID: uuid.NewString(), Started: s.now()}
	ctx = logging.WithPassID(ctx, stats.PassID)
	logger := logging.WithContext(ctx, s.logger)

	snapshots := s.enumerator.Enumerate(ctx)
	stats.Enumerated = len(snapshots)

	result := s.registry.Reconcile(snapshots, s.enumerator.Open)
	stats.Added = len(result.Added)
	stats.Removed = len(result.Removed)
	stats.Retained = result.Retained
	for _, e := range result.Removed {
		logger.Info("monitor removed", logging.Device(e.ID()))
		e.dispose()
	}
	for _, e := range result.Added {
		logger.Info("monitor added", logging.Device(e.ID()))
	}

	candidates := s.selectCandidates()
	stats.Refreshed, stats.Failed = s.refresh(ctx, candidates, func(ctx context.Context, e *Entry) bool {
		if !e.UpdateBrightness(ctx) {
			return false
		}
		e.setTarget(true)
		return true
	})

	stats.Fallback = s.applyTargetRule()
	for _, e := range s.registry.Entries() {
		if e.Target() {
			stats.Targets++
		}
		if e.Controllable() {
			stats.Controllable++
		}
	}

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
		}
	}

	stats.Duration = s.now().Sub(stats.Started)
	s.statsMu.Lock()
	s.last, s.hasLast = stats, true
	s.statsMu.Unlock()
	s.scans.Add(1)
	s.observer.ScanCompleted(stats)

	logger.Info("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int("enumerated", stats.Enumerated),
		logging.Int("added", stats.Added),
		logging.Int("removed", stats.Removed),
		logging.Int("targets", stats.Targets),
		logging.Int("failed", stats.Failed),
		logging.Bool("fallback", stats.Fallback),
		logging.Duration("duration", stats.Duration),
	)
	return true
}

// selectCandidates returns the first maxTargets accessible entries in registry
// order. Inaccessible entries and accessible entries past the cap lose the
// target flag; applyTargetRule may hand it back to the former.
func (s *Scanner) selectCandidates() []*Entry {
	limit := s.MaxTargets()
	var candidates []*Entry
	for _, e := range s.registry.Entries() {
		if e.accessible() && len(candidates) < limit {
			candidates = append(candidates, e)
			continue
		}
		e.setTarget(false)
	}
	return candidates
}

// applyTargetRule sets isTarget on every uncontrollable entry to whether the
// fleet has no controllable entry at all. With nothing controllable every
// entry is surfaced so consumers never see an empty set; once any entry is
// controllable the uncontrollable ones drop out again. It reports whether the
// fallback applied.
func (s *Scanner) applyTargetRule() bool {
	entries := s.registry.Entries()
	anyControllable := false
	for _, e := range entries {
		if e.Controllable() {
			anyControllable = true
			break
		}
	}
	for _, e := range entries {
		if !e.Controllable() {
			e.setTarget(!anyControllable)
		}
	}
	return !anyControllable && len(entries) > 0
}

// refresh runs fn for each entry with at most maxTargets in flight and waits
// for all of them. Each entry is handled by exactly one goroutine.
func (s *Scanner) refresh(ctx context.Context, entries []*Entry, fn func(context.Context, *Entry) bool) (ok, failed int) {
	if len(entries) == 0 {
		return 0, 0
	}
	var succeeded, failures atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.MaxTargets())
	for _, e := range entries {
		g.Go(func() error {
			if fn(ctx, e) {
				succeeded.Add(1)
			} else {
				failures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(succeeded.Load()), int(failures.Load())
}

// RefreshOnly re-reads brightness and contrast of the current targets without
// enumerating. It is a no-op while a full scan or another refresh runs. A scan
// that starts after the refresh has begun may overlap it; entry locks keep the
// two consistent and the scan's reads win.
func (s *Scanner) RefreshOnly(ctx context.Context) bool {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.observer.RefreshDropped()
		return false
	}
	defer s.refreshing.Store(false)
	// Read after taking the guard; a scan already running is always seen.
	if s.scanning.Load() {
		s.observer.RefreshDropped()
		return false
	}

	var targets []*Entry
	for _, e := range s.registry.Entries() {
		if e.Target() {
			targets = append(targets, e)
		}
	}
	refreshed, failed := s.refresh(ctx, targets, func(ctx context.Context, e *Entry) bool {
		if !e.UpdateBrightness(ctx) {
			return false
		}
		e.UpdateContrast(ctx)
		return true
	})
	s.observer.RefreshCompleted(refreshed, failed)
	s.logger.Debug("refresh complete",
		logging.Int("refreshed", refreshed),
		logging.Int("failed", failed),
	)
	return true
}

// Check is the periodic cycle: a full scan when the enumerator's cheap
// pre-check reports a topology change, otherwise a refresh of the targets.
func (s *Scanner) Check(ctx context.Context) bool {
	if s.enumerator.TopologyChanged(ctx) {
		s.logger.Debug("topology changed; scanning")
		return s.Scan(ctx, 0)
	}
	return s.RefreshOnly(ctx)
}
