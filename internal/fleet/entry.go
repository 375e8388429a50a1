package fleet

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"lumen/internal/customization"
	"lumen/internal/deviceid"
	"lumen/internal/logging"
	"lumen/internal/unison"
)

const (
	// failureThreshold is the consecutive failure count at which a monitor
	// stops being controllable. A single failure is tolerated.
	failureThreshold = 2
	commitTimeout    = 10 * time.Second
)

// View is a read-only copy of an entry's state.
type View struct {
	ID                 string
	Name               string
	Description        string
	DisplayIndex       int
	MonitorIndex       int
	Accessible         bool
	Controllable       bool
	Target             bool
	Unison             bool
	Brightness         int
	AdjustedBrightness int
	Contrast           int
	HasContrast        bool
	Failures           uint
	Customization      *customization.Customization
}

// Entry is one tracked monitor. Its identity survives handle rebinds for the
// same id, and so does its failure count.
type Entry struct {
	id  string
	key string

	// io serializes handle calls; a monitor bus cannot take two commands at once.
	io sync.Mutex

	mu          sync.Mutex
	snapshot    Snapshot
	handle      Handle
	brightness  int
	pending     float64
	contrast    int
	hasContrast bool
	target      bool
	failures    uint
	custom      customization.Customization
	hasCustom   bool
	closed      bool

	broadcaster *unison.Broadcaster
	unsubscribe func()
	commits     sync.WaitGroup
	onChange    func(*Entry)
	logger      *slog.Logger
}

func newEntry(snap Snapshot, handle Handle, logger *slog.Logger) *Entry {
	id := strings.TrimSpace(snap.ID)
	return &Entry{
		id:       id,
		key:      deviceid.Fold(id),
		snapshot: snap,
		handle:   handle,
		logger:   logger.With(logging.Device(id)),
	}
}

// ID returns the monitor id as first reported.
func (e *Entry) ID() string { return e.id }

// View returns a consistent copy of the entry's state.
func (e *Entry) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		ID:                 e.id,
		Name:               e.snapshot.Description,
		Description:        e.snapshot.Description,
		DisplayIndex:       e.snapshot.DisplayIndex,
		MonitorIndex:       e.snapshot.MonitorIndex,
		Accessible:         e.snapshot.Accessible,
		Controllable:       e.controllableLocked(),
		Target:             e.target,
		Unison:             e.unisonLocked(),
		Brightness:         e.brightness,
		AdjustedBrightness: e.adjustedLocked(),
		Contrast:           e.contrast,
		HasContrast:        e.hasContrast,
		Failures:           e.failures,
	}
	if e.hasCustom {
		c := e.custom
		v.Customization = &c
		if c.Name != "" {
			v.Name = c.Name
		}
	}
	return v
}

// Controllable reports whether the monitor is accessible and has not failed
// twice in a row.
func (e *Entry) Controllable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controllableLocked()
}

// Target reports whether the entry counts toward the control cap.
func (e *Entry) Target() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// Failures returns the consecutive failure count.
func (e *Entry) Failures() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

func (e *Entry) accessible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Accessible
}

func (e *Entry) setTarget(target bool) {
	e.mu.Lock()
	changed := e.target != target
	e.target = target
	e.mu.Unlock()
	if changed {
		e.changed()
	}
}

func (e *Entry) controllableLocked() bool {
	return e.snapshot.Accessible && e.failures < failureThreshold
}

func (e *Entry) unisonLocked() bool {
	return e.hasCustom && e.custom.IsUnison
}

func (e *Entry) rangeLocked() (uint8, uint8) {
	if e.hasCustom {
		return e.custom.Lowest, e.custom.Highest
	}
	return customization.DefaultLowest, customization.DefaultHighest
}

func (e *Entry) adjustedLocked() int {
	lo, hi := e.rangeLocked()
	width := int(hi) - int(lo)
	if width <= 0 {
		return 0
	}
	return clamp((e.brightness-int(lo))*100/width, 0, 100)
}

// recordLocked applies one handle outcome to the failure tracker. Any success
// resets the counter.
func (e *Entry) recordLocked(ok bool) {
	if ok {
		if e.failures >= failureThreshold {
			e.logger.Info("monitor recovered", logging.Uint64("failures", uint64(e.failures)))
		}
		e.failures = 0
		return
	}
	e.failures++
	if e.failures == failureThreshold {
		logging.WarnWithContext(e.logger, "monitor not responding", "monitor_uncontrollable",
			logging.Uint64("failures", uint64(e.failures)),
			logging.String(logging.FieldErrorHint, "check the cable and that the monitor has DDC/CI enabled"),
			logging.String(logging.FieldImpact, "monitor excluded from brightness control until it responds"),
		)
	}
}

// UpdateBrightness reads the current level from the monitor.
func (e *Entry) UpdateBrightness(ctx context.Context) bool {
	e.io.Lock()
	level, ok := e.handle.TryGetBrightness(ctx)
	e.io.Unlock()

	e.mu.Lock()
	e.recordLocked(ok)
	if ok {
		e.brightness = clamp(level, 0, 100)
		e.pending = float64(e.brightness)
	}
	e.mu.Unlock()
	e.changed()
	return ok
}

// UpdateContrast reads the current contrast. Failures count toward the
// tracker only once the monitor has reported contrast at least once.
func (e *Entry) UpdateContrast(ctx context.Context) bool {
	e.io.Lock()
	level, ok := e.handle.TryGetContrast(ctx)
	e.io.Unlock()

	e.mu.Lock()
	if ok || e.hasContrast {
		e.recordLocked(ok)
	}
	if ok {
		e.contrast = clamp(level, 0, 100)
		e.hasContrast = true
	}
	e.mu.Unlock()
	e.changed()
	return ok
}

// SetBrightness writes level, clamped to 0-100, to the monitor.
func (e *Entry) SetBrightness(ctx context.Context, level int) bool {
	level = clamp(level, 0, 100)
	e.io.Lock()
	ok := e.handle.TrySetBrightness(ctx, level)
	e.io.Unlock()

	e.mu.Lock()
	e.recordLocked(ok)
	if ok {
		e.brightness = level
		e.pending = float64(level)
	}
	e.mu.Unlock()
	e.changed()
	return ok
}

// SetContrast writes level, clamped to 0-100, to the monitor.
func (e *Entry) SetContrast(ctx context.Context, level int) bool {
	level = clamp(level, 0, 100)
	e.io.Lock()
	ok := e.handle.TrySetContrast(ctx, level)
	e.io.Unlock()

	e.mu.Lock()
	e.recordLocked(ok)
	if ok {
		e.contrast = level
		e.hasContrast = true
	}
	e.mu.Unlock()
	e.changed()
	return ok
}

// Adjust is an interactive brightness change. The value is clamped to the
// entry's effective range. When the entry is in unison the normalized change
// is published to the other unison monitors; commit writes the value to the
// monitor and tells the others to persist theirs. Adjusting to the current
// value with commit set publishes a flush. A preview moves the reported
// brightness at once; a commit only moves it once the monitor accepts it.
func (e *Entry) Adjust(ctx context.Context, value int, commit bool) bool {
	e.mu.Lock()
	lo, hi := e.rangeLocked()
	value = clamp(value, int(lo), int(hi))
	previous := e.pending
	e.pending = float64(value)
	if !commit {
		e.brightness = value
	}
	inUnison := e.unisonLocked()
	width := int(hi) - int(lo)
	e.mu.Unlock()

	if inUnison && e.broadcaster != nil {
		delta := unison.NormalizedDelta(previous, float64(value), width)
		if delta != 0 || commit {
			e.broadcaster.Publish(unison.Message{Origin: e.id, Delta: delta, Commit: commit})
		}
	}
	if !commit {
		e.changed()
		return true
	}
	return e.SetBrightness(ctx, value)
}

// Unison implements unison.Subscriber.
func (e *Entry) Unison() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unisonLocked()
}

// ApplyUnison implements unison.Subscriber. It only touches in-memory state;
// a commit schedules the monitor write on a tracked goroutine.
func (e *Entry) ApplyUnison(msg unison.Message) {
	e.mu.Lock()
	if e.closed || !e.unisonLocked() {
		e.mu.Unlock()
		return
	}
	if !msg.IsFlush() {
		lo, hi := e.rangeLocked()
		e.pending = unison.Apply(e.pending, msg.Delta, lo, hi)
		e.brightness = int(math.Round(e.pending))
	}
	target := e.brightness
	if msg.Commit {
		e.commits.Add(1)
	}
	e.mu.Unlock()

	if msg.Commit {
		go func() {
			defer e.commits.Done()
			ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
			defer cancel()
			if !e.SetBrightness(ctx, target) {
				e.logger.Debug("unison commit failed", logging.Int("brightness", target))
			}
		}()
		return
	}
	e.changed()
}

// WaitCommits blocks until scheduled unison writes have finished.
func (e *Entry) WaitCommits() {
	e.commits.Wait()
}

func (e *Entry) applyCustomization(c customization.Customization, ok bool) {
	e.mu.Lock()
	e.custom = c
	e.hasCustom = ok
	if ok {
		lo, hi := e.rangeLocked()
		e.pending = math.Min(math.Max(e.pending, float64(lo)), float64(hi))
	}
	e.mu.Unlock()
	e.changed()
}

// rebind reports whether the snapshot differs from the previous one.
func (e *Entry) rebind(snap Snapshot) bool {
	e.mu.Lock()
	changed := e.snapshot != snap
	e.snapshot = snap
	e.mu.Unlock()

	e.io.Lock()
	e.handle.Rebind(snap)
	e.io.Unlock()
	return changed
}

func (e *Entry) attach(b *unison.Broadcaster, onChange func(*Entry)) {
	e.broadcaster = b
	e.onChange = onChange
	if b != nil {
		e.unsubscribe = b.Subscribe(e.id, e)
	}
}

// dispose detaches the entry and closes its handle once pending commits finish.
func (e *Entry) dispose() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.mu.Lock()
	e.closed = true
	e.onChange = nil
	e.mu.Unlock()
	e.commits.Wait()

	e.io.Lock()
	err := e.handle.Close()
	e.io.Unlock()
	if err != nil {
		e.logger.Debug("monitor handle close failed", logging.Error(err))
	}
}

func (e *Entry) changed() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
