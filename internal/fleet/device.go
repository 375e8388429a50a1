package fleet

import "context"

// Snapshot is one monitor as reported by a single enumeration pass.
type Snapshot struct {
	ID           string
	Description  string
	DisplayIndex int
	MonitorIndex int
	Accessible   bool
}

// Handle controls one physical monitor. Every operation may fail transiently;
// failures are reported as false, never as errors.
type Handle interface {
	TryGetBrightness(ctx context.Context) (int, bool)
	TrySetBrightness(ctx context.Context, level int) bool
	TryGetContrast(ctx context.Context) (int, bool)
	TrySetContrast(ctx context.Context, level int) bool
	// Rebind points the handle at the monitor described by a fresh snapshot
	// of the same id.
	Rebind(Snapshot)
	Close() error
}

// Enumerator lists the monitors currently attached.
//
// Enumerate never fails: a backend error degrades to an empty or partial list.
// TopologyChanged is a cheap pre-check used by the periodic cycle to decide
// whether a full scan is worth running.
type Enumerator interface {
	Enumerate(ctx context.Context) []Snapshot
	Open(Snapshot) Handle
	TopologyChanged(ctx context.Context) bool
}
