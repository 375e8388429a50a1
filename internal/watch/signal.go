package watch

import "context"

// Source identifies the kind of OS change behind a signal.
type Source int

const (
	Topology Source = iota
	Session
	Power
	Brightness
)

func (s Source) String() string {
	switch s {
	case Topology:
		return "topology"
	case Session:
		return "session"
	case Power:
		return "power"
	case Brightness:
		return "brightness"
	default:
		return "unknown"
	}
}

// Signal is one change notification. HasCount distinguishes an explicit count
// of zero, which means nothing changed, from a signal that carries no count.
type Signal struct {
	Source   Source
	Count    int
	HasCount bool
	// Locked is the session state after a Session signal.
	Locked bool
}

// Notify builds a signal without a count.
func Notify(src Source) Signal {
	return Signal{Source: src}
}

// Counted builds a signal carrying the number of affected items.
func Counted(src Source, n int) Signal {
	return Signal{Source: src, Count: n, HasCount: true}
}

// Handler receives signals. It runs on the watcher's goroutine and must not block.
type Handler func(Signal)

// Watcher is an independent source of change signals.
type Watcher interface {
	Name() string
	// Start begins delivering signals to handler. A watcher whose OS facility
	// is unavailable logs the problem and returns nil.
	Start(ctx context.Context, handler Handler) error
	Stop()
	Running() bool
}
