package fleet

import (
	"log/slog"
	"sync"

	"lumen/internal/customization"
	"lumen/internal/deviceid"
	"lumen/internal/logging"
	"lumen/internal/unison"
)

// EventKind identifies a registry notification.
type EventKind int

const (
	EntryAdded EventKind = iota
	EntryRemoved
	EntryUpdated
	ScanningChanged
)

func (k EventKind) String() string {
	switch k {
	case EntryAdded:
		return "added"
	case EntryRemoved:
		return "removed"
	case EntryUpdated:
		return "updated"
	case ScanningChanged:
		return "scanning"
	default:
		return "unknown"
	}
}

// Event describes one change to the registry. Index is the entry's position at
// the moment of the change; removals are reported from the highest index down
// so a consumer mirroring the list by index stays consistent.
type Event struct {
	Kind     EventKind
	Index    int
	Entry    View
	Scanning bool
}

// ReconcileResult summarizes one structural reconciliation.
type ReconcileResult struct {
	Added    []*Entry
	Removed  []*Entry
	Retained int
}

// Registry is the ordered set of tracked monitors. Structural changes happen
// only through Reconcile, under the write lock, so readers never observe a
// half-applied pass.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int

	customizations *customization.Store
	broadcaster    *unison.Broadcaster
	logger         *slog.Logger
}

// NewRegistry creates an empty registry. customizations and broadcaster may be nil.
func NewRegistry(customizations *customization.Store, broadcaster *unison.Broadcaster, logger *slog.Logger) *Registry {
	return &Registry{
		subs:           make(map[int]func(Event)),
		customizations: customizations,
		broadcaster:    broadcaster,
		logger:         logging.NewComponentLogger(logger, "registry"),
	}
}

// Subscribe registers fn for every registry event and returns a function that
// removes it. fn runs synchronously on the goroutine that caused the change.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) emit(evt Event) {
	r.subMu.Lock()
	fns := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

// Len reports the number of tracked monitors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns the tracked entries in order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Views returns a read-only copy of every entry in order.
func (r *Registry) Views() []View {
	entries := r.Entries()
	views := make([]View, 0, len(entries))
	for _, e := range entries {
		views = append(views, e.View())
	}
	return views
}

// Find returns the entry for id, compared case-insensitively.
func (r *Registry) Find(id string) (*Entry, bool) {
	key := deviceid.Fold(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.key == key {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) indexOf(target *Entry) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, e := range r.entries {
		if e == target {
			return i
		}
	}
	return -1
}

// Reconcile applies an enumeration snapshot. Unseen ids are appended in
// enumeration order and entries whose id is missing are removed from the
// highest index down. Entries whose id reappears keep their identity and are
// rebound to the fresh snapshot after the structural edit is published.
// Removed entries are returned undisposed so the caller can release their
// handles outside the lock.
func (r *Registry) Reconcile(snapshots []Snapshot, open func(Snapshot) Handle) ReconcileResult {
	type rebind struct {
		entry *Entry
		snap  Snapshot
	}
	var (
		result  ReconcileResult
		rebinds []rebind
		removed []Event
		added   []Event
	)

	r.mu.Lock()
	retained := make([]bool, len(r.entries))
	staged := make([]Snapshot, 0, len(snapshots))
	seen := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		key := deviceid.Fold(snap.ID)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		matched := false
		for i, e := range r.entries {
			if e.key == key {
				rebinds = append(rebinds, rebind{entry: e, snap: snap})
				retained[i] = true
				matched = true
				break
			}
		}
		if !matched {
			staged = append(staged, snap)
		}
	}

	for i := len(r.entries) - 1; i >= 0; i-- {
		if retained[i] {
			result.Retained++
			continue
		}
		e := r.entries[i]
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		result.Removed = append(result.Removed, e)
		removed = append(removed, Event{Kind: EntryRemoved, Index: i})
	}

	for _, snap := range staged {
		e := newEntry(snap, open(snap), r.logger)
		if r.customizations != nil {
			c, ok := r.customizations.TryLoad(e.id)
			e.custom, e.hasCustom = c, ok
		}
		e.attach(r.broadcaster, r.entryChanged)
		r.entries = append(r.entries, e)
		result.Added = append(result.Added, e)
		added = append(added, Event{Kind: EntryAdded, Index: len(r.entries) - 1})
	}
	r.mu.Unlock()

	for i, evt := range removed {
		evt.Entry = result.Removed[i].View()
		r.emit(evt)
	}
	for i, evt := range added {
		evt.Entry = result.Added[i].View()
		r.emit(evt)
	}
	for _, rb := range rebinds {
		if rb.entry.rebind(rb.snap) {
			rb.entry.changed()
		}
	}
	return result
}

func (r *Registry) entryChanged(e *Entry) {
	idx := r.indexOf(e)
	if idx < 0 {
		return
	}
	r.emit(Event{Kind: EntryUpdated, Index: idx, Entry: e.View()})
}

// SaveCustomization stores a customization for id and applies it to the
// tracked entry, if any. Invalid or all-default values clear it.
func (r *Registry) SaveCustomization(id string, c customization.Customization) bool {
	if r.customizations == nil {
		return false
	}
	stored := r.customizations.Save(id, c)
	if e, ok := r.Find(id); ok {
		if stored {
			loaded, _ := r.customizations.TryLoad(id)
			e.applyCustomization(loaded, true)
		} else {
			e.applyCustomization(customization.Customization{}, false)
		}
	}
	return stored
}

// TryLoadCustomization returns the stored customization for id.
func (r *Registry) TryLoadCustomization(id string) (customization.Customization, bool) {
	if r.customizations == nil {
		return customization.Customization{}, false
	}
	return r.customizations.TryLoad(id)
}

// RefreshCustomizations re-reads the stored customization of every tracked
// entry. Used after the store changed behind the registry's back, for example
// by an import or an eviction caused by shrinking the store.
func (r *Registry) RefreshCustomizations() {
	if r.customizations == nil {
		return
	}
	for _, e := range r.Entries() {
		c, ok := r.customizations.Peek(e.id)
		e.applyCustomization(c, ok)
	}
}

func (r *Registry) setScanning(scanning bool) {
	r.emit(Event{Kind: ScanningChanged, Index: -1, Scanning: scanning})
}

// Close disposes every tracked entry.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()
	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].dispose()
	}
}
