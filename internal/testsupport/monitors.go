package testsupport

import (
	"context"
	"sync"
	"sync/atomic"

	"lumen/internal/deviceid"
	"lumen/internal/fleet"
)

// FakeMonitor is the simulated hardware behind a FakeHandle. It outlives
// handles so a monitor can be unplugged and replugged.
type FakeMonitor struct {
	mu          sync.Mutex
	brightness  int
	contrast    int
	hasContrast bool
	failing     bool
	failNext    int
	gets        int
	sets        []int
	gate        chan struct{}
	entered     chan struct{}
}

// NewFakeMonitor returns a responsive monitor at the given brightness.
func NewFakeMonitor(brightness int) *FakeMonitor {
	return &FakeMonitor{brightness: brightness}
}

// WithContrast enables contrast support at level.
func (m *FakeMonitor) WithContrast(level int) *FakeMonitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contrast = level
	m.hasContrast = true
	return m
}

// SetFailing makes every operation fail until cleared.
func (m *FakeMonitor) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// FailNext makes the next n operations fail.
func (m *FakeMonitor) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// BlockReads makes brightness reads wait until release is called. entered
// receives a value each time a read starts waiting.
func (m *FakeMonitor) BlockReads() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{}, 8)
	gate := m.gate
	var once sync.Once
	return m.entered, func() { once.Do(func() { close(gate) }) }
}

// SetBrightness changes the level as if adjusted on the monitor itself.
func (m *FakeMonitor) SetBrightness(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = level
}

// Brightness returns the simulated hardware level.
func (m *FakeMonitor) Brightness() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness
}

// Gets returns how many brightness reads reached the monitor.
func (m *FakeMonitor) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// Sets returns every brightness level written to the monitor.
func (m *FakeMonitor) Sets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.sets...)
}

func (m *FakeMonitor) failLocked() bool {
	if m.failing {
		return true
	}
	if m.failNext > 0 {
		m.failNext--
		return true
	}
	return false
}

// FakeHandle implements fleet.Handle over a FakeMonitor.
type FakeHandle struct {
	id       string
	monitor  *FakeMonitor
	mu       sync.Mutex
	snapshot fleet.Snapshot
	rebinds  int
	closed   bool
}

func (h *FakeHandle) TryGetBrightness(ctx context.Context) (int, bool) {
	m := h.monitor
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, false
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failLocked() {
		return 0, false
	}
	return m.brightness, true
}

func (h *FakeHandle) TrySetBrightness(_ context.Context, level int) bool {
	m := h.monitor
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLocked() {
		return false
	}
	m.brightness = level
	m.sets = append(m.sets, level)
	return true
}

func (h *FakeHandle) TryGetContrast(context.Context) (int, bool) {
	m := h.monitor
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasContrast || m.failLocked() {
		return 0, false
	}
	return m.contrast, true
}

func (h *FakeHandle) TrySetContrast(_ context.Context, level int) bool {
	m := h.monitor
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasContrast || m.failLocked() {
		return false
	}
	m.contrast = level
	return true
}

func (h *FakeHandle) Rebind(snap fleet.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = snap
	h.rebinds++
}

func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Rebinds returns how many times the handle was rebound.
func (h *FakeHandle) Rebinds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rebinds
}

// FakeEnumerator implements fleet.Enumerator with scripted results.
type FakeEnumerator struct {
	mu        sync.Mutex
	snapshots []fleet.Snapshot
	monitors  map[string]*FakeMonitor
	handles   []*FakeHandle
	changed   bool
	gate      chan struct{}
	entered   chan struct{}

	calls atomic.Int32
}

// NewFakeEnumerator returns an enumerator with no monitors attached.
func NewFakeEnumerator() *FakeEnumerator {
	return &FakeEnumerator{monitors: make(map[string]*FakeMonitor)}
}

// Attach registers the simulated hardware for id.
func (f *FakeEnumerator) Attach(id string, m *FakeMonitor) *FakeMonitor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors[deviceid.Fold(id)] = m
	return m
}

// SetSnapshots scripts the next enumeration result and flags a topology change.
func (f *FakeEnumerator) SetSnapshots(snaps ...fleet.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append([]fleet.Snapshot(nil), snaps...)
	f.changed = true
}

// Block makes Enumerate wait until the returned release function is called.
// entered receives a value each time Enumerate starts waiting.
func (f *FakeEnumerator) Block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

// Calls returns the number of Enumerate calls.
func (f *FakeEnumerator) Calls() int {
	return int(f.calls.Load())
}

// Handles returns every handle opened so far, in order.
func (f *FakeEnumerator) Handles() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.handles...)
}

// HandleFor returns the most recently opened handle for id.
func (f *FakeEnumerator) HandleFor(id string) *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deviceid.Fold(id)
	for i := len(f.handles) - 1; i >= 0; i-- {
		if deviceid.Fold(f.handles[i].id) == key {
			return f.handles[i]
		}
	}
	return nil
}

func (f *FakeEnumerator) Enumerate(ctx context.Context) []fleet.Snapshot {
	f.calls.Add(1)
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = false
	return append([]fleet.Snapshot(nil), f.snapshots...)
}

func (f *FakeEnumerator) Open(snap fleet.Snapshot) fleet.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.monitors[deviceid.Fold(snap.ID)]
	if !ok {
		m = NewFakeMonitor(50)
		f.monitors[deviceid.Fold(snap.ID)] = m
	}
	h := &FakeHandle{id: snap.ID, monitor: m, snapshot: snap}
	f.handles = append(f.handles, h)
	return h
}

func (f *FakeEnumerator) TopologyChanged(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// Snapshot builds an accessible snapshot for id.
func Snapshot(id string) fleet.Snapshot {
	return fleet.Snapshot{ID: id, Description: id, Accessible: true}
}
